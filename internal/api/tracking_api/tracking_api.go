package tracking_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/DriverTrack/internal/integrations/telephony"
	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/BearBump/DriverTrack/internal/services/tracking"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Service interface {
	Open(ctx context.Context, info models.SessionInfo) (tracking.Snapshot, error)
	OpenLastDelivery(ctx context.Context, deviceID string) (tracking.Snapshot, error)
	RememberLastDelivery(ctx context.Context, o models.LastDeliveryOrder) error
	Get(orderID string) (tracking.Snapshot, error)
	Close(orderID string) error
	Refresh(orderID string) error
	SetOverlay(orderID string, proportion float64) (tracking.Snapshot, error)
	CallStore(ctx context.Context, orderID string) (string, error)
	Subscribe(orderID string) (<-chan tracking.Event, func(), error)
	ListPositions(ctx context.Context, orderID string, limit int) ([]*models.DriverPosition, error)
}

type TrackingAPI struct {
	svc      Service
	mux      *runtime.ServeMux
	errMarsh runtime.Marshaler
}

type OpenSessionRequest struct {
	OrderID          string             `json:"order_id"`
	BusinessOrderID  string             `json:"business_order_id"`
	DeviceID         string             `json:"device_id,omitempty"`
	DriverName       *string            `json:"driver_name,omitempty"`
	StorePhone       *string            `json:"store_phone,omitempty"`
	DestinationLabel string             `json:"destination_label"`
	Destination      *models.Coordinate `json:"destination,omitempty"`
}

type RememberLastDeliveryRequest struct {
	OrderID         string             `json:"order_id"`
	BusinessOrderID string             `json:"business_order_id"`
	StoreName       string             `json:"store_name"`
	StorePhone      *string            `json:"store_phone,omitempty"`
	PostCode        string             `json:"post_code"`
	Destination     *models.Coordinate `json:"destination,omitempty"`
}

type OverlayRequest struct {
	Proportion float64 `json:"proportion"`
}

type CallStoreResponse struct {
	URI string `json:"uri"`
}

type PositionsResponse struct {
	Positions []*models.DriverPosition `json:"positions"`
}

// New registers the tracking routes on a gateway mux.
func New(svc Service) (*TrackingAPI, error) {
	a := &TrackingAPI{svc: svc, mux: runtime.NewServeMux(), errMarsh: &runtime.JSONPb{}}

	routes := []struct {
		method, path string
		h            runtime.HandlerFunc
	}{
		{http.MethodPost, "/v1/sessions", a.openSession},
		{http.MethodGet, "/v1/sessions/{order_id}", a.getSession},
		{http.MethodDelete, "/v1/sessions/{order_id}", a.closeSession},
		{http.MethodPost, "/v1/sessions/{order_id}/refresh", a.refresh},
		{http.MethodPut, "/v1/sessions/{order_id}/overlay", a.setOverlay},
		{http.MethodPost, "/v1/sessions/{order_id}/call-store", a.callStore},
		{http.MethodGet, "/v1/sessions/{order_id}/events", a.streamEvents},
		{http.MethodPut, "/v1/devices/{device_id}/last-delivery", a.rememberLastDelivery},
		{http.MethodPost, "/v1/devices/{device_id}/last-delivery/session", a.openLastDelivery},
		{http.MethodGet, "/v1/orders/{order_id}/positions", a.listPositions},
	}
	for _, rt := range routes {
		if err := a.mux.HandlePath(rt.method, rt.path, rt.h); err != nil {
			return nil, errors.Wrapf(err, "register %s %s", rt.method, rt.path)
		}
	}
	return a, nil
}

func (a *TrackingAPI) Handler() http.Handler {
	return a.mux
}

func (a *TrackingAPI) openSession(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.fail(w, r, status.Error(codes.InvalidArgument, "invalid json body"))
		return
	}
	snap, err := a.svc.Open(r.Context(), models.SessionInfo{
		OrderID:          req.OrderID,
		BusinessOrderID:  req.BusinessOrderID,
		DeviceID:         req.DeviceID,
		DriverName:       req.DriverName,
		StorePhone:       req.StorePhone,
		DestinationLabel: req.DestinationLabel,
		Destination:      req.Destination,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (a *TrackingAPI) openLastDelivery(w http.ResponseWriter, r *http.Request, p map[string]string) {
	snap, err := a.svc.OpenLastDelivery(r.Context(), p["device_id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (a *TrackingAPI) rememberLastDelivery(w http.ResponseWriter, r *http.Request, p map[string]string) {
	var req RememberLastDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.fail(w, r, status.Error(codes.InvalidArgument, "invalid json body"))
		return
	}
	err := a.svc.RememberLastDelivery(r.Context(), models.LastDeliveryOrder{
		DeviceID:        p["device_id"],
		OrderID:         req.OrderID,
		BusinessOrderID: req.BusinessOrderID,
		StoreName:       req.StoreName,
		StorePhone:      req.StorePhone,
		PostCode:        req.PostCode,
		Destination:     req.Destination,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *TrackingAPI) getSession(w http.ResponseWriter, r *http.Request, p map[string]string) {
	snap, err := a.svc.Get(p["order_id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *TrackingAPI) closeSession(w http.ResponseWriter, r *http.Request, p map[string]string) {
	if err := a.svc.Close(p["order_id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *TrackingAPI) refresh(w http.ResponseWriter, r *http.Request, p map[string]string) {
	if err := a.svc.Refresh(p["order_id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *TrackingAPI) setOverlay(w http.ResponseWriter, r *http.Request, p map[string]string) {
	var req OverlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.fail(w, r, status.Error(codes.InvalidArgument, "invalid json body"))
		return
	}
	if req.Proportion < 0 || req.Proportion >= 1 {
		a.fail(w, r, status.Error(codes.InvalidArgument, "proportion must be in [0, 1)"))
		return
	}
	snap, err := a.svc.SetOverlay(p["order_id"], req.Proportion)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *TrackingAPI) callStore(w http.ResponseWriter, r *http.Request, p map[string]string) {
	uri, err := a.svc.CallStore(r.Context(), p["order_id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CallStoreResponse{URI: uri})
}

func (a *TrackingAPI) listPositions(w http.ResponseWriter, r *http.Request, p map[string]string) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.fail(w, r, status.Error(codes.InvalidArgument, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	ps, err := a.svc.ListPositions(r.Context(), p["order_id"], limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PositionsResponse{Positions: ps})
}

// streamEvents writes session events as server-sent events until the session
// ends or the client goes away.
func (a *TrackingAPI) streamEvents(w http.ResponseWriter, r *http.Request, p map[string]string) {
	ch, cancel, err := a.svc.Subscribe(p["order_id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer cancel()

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			_, _ = fmt.Fprint(w, ": keep-alive\n\n")
		case ev, ok := <-ch:
			if !ok {
				return
			}
			b, err := json.Marshal(ev.Snapshot)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, b)
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (a *TrackingAPI) fail(w http.ResponseWriter, r *http.Request, err error) {
	runtime.HTTPError(r.Context(), a.mux, a.errMarsh, w, r, toStatus(err))
}

func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, tracking.ErrSessionNotFound), errors.Is(err, tracking.ErrNoLastDelivery):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, tracking.ErrSessionExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, tracking.ErrSessionClosed), errors.Is(err, tracking.ErrNoStorePhone):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, tracking.ErrCallsDisabled):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, telephony.ErrNoNumber):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, tracking.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
