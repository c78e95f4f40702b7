package cfu

import (
	"context"

	"github.com/jangala-dev/ecfw-core/bus"
	"github.com/jangala-dev/ecfw-core/internal/xlog"
	"github.com/jangala-dev/ecfw-core/registry"
)

// Writer is the storage side of a component: applying content bytes and
// the two-phase prepare/finalize bracket around an update.
type Writer interface {
	WriteContent(cmd ContentCommand) error
	PrepareForUpdate() error
	FinalizeUpdate() error
}

// Component is one updatable unit: a standalone device, or a primary
// fronting a fixed set of subcomponents that share its physical update
// channel but report their own versions.
type Component struct {
	node registry.Node[*Component]

	id             ComponentId
	version        FwVersion
	defaultVersion FwVersion
	subcomponents  []ComponentId
	writer         Writer
}

// NewComponent builds a standalone (non-primary) component. defaultVersion
// is what a primary substitutes for this component's slot when it can't
// be reached; it only matters if this component is later named as a
// subcomponent of some primary.
func NewComponent(id ComponentId, version, defaultVersion FwVersion, writer Writer) *Component {
	return &Component{id: id, version: version, defaultVersion: defaultVersion, writer: writer}
}

// ID returns the component's identity.
func (c *Component) ID() ComponentId { return c.id }

// SetSubcomponents declares this component as a primary fronting ids;
// FwVersionRequest to this component fans out to each of them.
func (c *Component) SetSubcomponents(ids []ComponentId) {
	c.subcomponents = append([]ComponentId(nil), ids...)
}

// topic is the bus address this component listens for routed requests
// on: one leaf per component ID under "cfu".
func (c *Component) topic() bus.Topic { return componentTopic(c.id) }

func componentTopic(id ComponentId) bus.Topic { return bus.T("cfu", int(id)) }

// handle executes req against this component and reports whether a
// reply should be sent at all — GiveOffer addressed to a different
// component is silently dropped rather than answered.
func (c *Component) handle(ctx context.Context, svc *Service, req Request) (Response, bool) {
	switch req.Kind {
	case ReqFwVersion:
		resp := Response{Version: c.version}
		for _, sub := range c.subcomponents {
			v, err := svc.subcomponentVersion(ctx, sub)
			if err != nil {
				v = svc.defaultVersionFor(sub)
			}
			resp.Subcomps = append(resp.Subcomps, ComponentVersion{Component: sub, Version: v})
		}
		return resp, true

	case ReqGiveOffer:
		if req.Offer.TargetComponent != c.id {
			return Response{}, false
		}
		res := OfferAccepted
		return Response{OfferRes: res}, true

	case ReqGiveContent:
		res := ContentAccepted
		if err := c.writer.WriteContent(req.Content); err != nil {
			res = ContentRejected
		}
		return Response{ContentRes: res}, true

	case ReqPrepareForUpdate:
		if err := c.writer.PrepareForUpdate(); err != nil {
			xlog.Warnf(logTag, "component %d prepare_for_update: %v", c.id, err)
		}
		return Response{}, true

	case ReqFinalizeUpdate:
		if err := c.writer.FinalizeUpdate(); err != nil {
			xlog.Warnf(logTag, "component %d finalize_update: %v", c.id, err)
		}
		return Response{}, true

	default:
		return Response{}, true
	}
}
