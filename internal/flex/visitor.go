package flex

import (
	"context"

	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/osmstore-go/osmstore/internal/logger"
	"github.com/osmstore-go/osmstore/internal/osmstore"
)

// ProcessorVisitor adapts a Processor to pbf.ObjectVisitor, turning the
// extractor's raw id/tags callbacks into the *OSMObject the Lua runtime
// expects. It carries no state of its own beyond the processor and the
// context each call should run under.
type ProcessorVisitor struct {
	ctx context.Context
	p   *Processor
}

// NewProcessorVisitor wraps p so it can be passed as a pbf.ObjectVisitor.
func NewProcessorVisitor(ctx context.Context, p *Processor) *ProcessorVisitor {
	return &ProcessorVisitor{ctx: ctx, p: p}
}

// VisitNode implements pbf.ObjectVisitor.
func (v *ProcessorVisitor) VisitNode(id osmstore.NodeID, tags osm.Tags, ll osmstore.LatpLon) {
	if !v.p.HasProcessNode() {
		return
	}
	obj := &OSMObject{
		ID:   int64(id),
		Type: "node",
		Tags: tags.Map(),
		Lat:  float64(ll.Latp) / 1e7,
		Lon:  float64(ll.Lon) / 1e7,
	}
	if err := v.p.ProcessNode(v.ctx, obj); err != nil {
		logger.Get().Warn("process_node failed", zap.Int64("id", obj.ID), zap.Error(err))
	}
}

// VisitWay implements pbf.ObjectVisitor.
func (v *ProcessorVisitor) VisitWay(id osmstore.WayID, tags osm.Tags, closed bool) {
	if !v.p.HasProcessWay() {
		return
	}
	obj := &OSMObject{
		ID:         int64(id),
		Type:       "way",
		Tags:       tags.Map(),
		IsClosed:   closed,
		StoreWayID: id,
	}
	if err := v.p.ProcessWay(v.ctx, obj); err != nil {
		logger.Get().Warn("process_way failed", zap.Int64("id", obj.ID), zap.Error(err))
	}
}

// VisitRelation implements pbf.ObjectVisitor.
func (v *ProcessorVisitor) VisitRelation(id osmstore.WayID, tags osm.Tags) {
	if !v.p.HasProcessRelation() {
		return
	}
	obj := &OSMObject{
		ID:         int64(id),
		Type:       "relation",
		Tags:       tags.Map(),
		StoreWayID: id,
	}
	if err := v.p.ProcessRelation(v.ctx, obj); err != nil {
		logger.Get().Warn("process_relation failed", zap.Int64("id", obj.ID), zap.Error(err))
	}
}
