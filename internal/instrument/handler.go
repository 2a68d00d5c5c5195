package instrument

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"secrets-backend/internal/apperror"
	"secrets-backend/internal/store"
)

const selectEvents = "SELECT id, trace_id, span_id, parent_span_id, event_type, source, component, action, subject, record_id, user_id, duration_ms, status, metadata, created_at FROM _events"

// EventHandler serves the admin trace browser.
type EventHandler struct {
	store *store.Store
}

func NewEventHandler(s *store.Store) *EventHandler {
	return &EventHandler{store: s}
}

// RegisterRoutes mounts the event endpoints. The caller supplies the auth
// chain; every route here is admin only.
func (h *EventHandler) RegisterRoutes(router fiber.Router, guards ...fiber.Handler) {
	g := router.Group("/events", guards...)
	g.Get("/", h.List)
	g.Get("/trace/:traceId", h.GetTrace)
}

var eventFilters = []string{"source", "component", "action", "subject", "trace_id", "user_id", "status"}

// List handles GET /api/events.
func (h *EventHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()
	d := h.store.Dialect
	pb := d.NewParamBuilder()

	var conditions []string
	for _, col := range eventFilters {
		if v := c.Query(col); v != "" {
			conditions = append(conditions, col+" = "+pb.Add(v))
		}
	}
	for param, op := range map[string]string{"from": ">=", "to": "<="} {
		v := c.Query(param)
		if v == "" {
			continue
		}
		t, err := store.Time(v)
		if err != nil {
			return apperror.InvalidPayload(fmt.Sprintf("invalid %s timestamp: %s", param, v))
		}
		conditions = append(conditions, "created_at "+op+" "+pb.Add(d.TimeParam(t)))
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 100 {
		perPage = 100
	}

	orderBy := "created_at DESC"
	if c.Query("sort") == "created_at" {
		orderBy = "created_at ASC"
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	countRow, err := store.QueryRow(ctx, h.store.DB, "SELECT COUNT(*) AS count FROM _events"+where, pb.Params()...)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}
	total := toInt(countRow["count"])

	query := fmt.Sprintf("%s%s ORDER BY %s LIMIT %s OFFSET %s",
		selectEvents, where, orderBy, pb.Add(perPage), pb.Add((page-1)*perPage))
	rows, err := store.QueryRows(ctx, h.store.DB, query, pb.Params()...)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	events, err := eventsFromRows(rows)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": events,
		"pagination": fiber.Map{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// TraceNode is a span with its children attached.
type TraceNode struct {
	Event
	Children []*TraceNode `json:"children"`
}

// GetTrace handles GET /api/events/trace/:traceId and returns the span tree.
func (h *EventHandler) GetTrace(c *fiber.Ctx) error {
	traceID := c.Params("traceId")
	pb := h.store.Dialect.NewParamBuilder()
	rows, err := store.QueryRows(c.UserContext(), h.store.DB,
		selectEvents+" WHERE trace_id = "+pb.Add(traceID)+" ORDER BY created_at ASC", pb.Params()...)
	if err != nil {
		return fmt.Errorf("get trace: %w", err)
	}
	if len(rows) == 0 {
		return apperror.NotFound("Trace", traceID)
	}
	events, err := eventsFromRows(rows)
	if err != nil {
		return err
	}

	root := BuildTree(events)
	var total *float64
	if root != nil {
		total = root.DurationMs
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"trace_id":          traceID,
			"root_span":         root,
			"spans":             events,
			"total_duration_ms": total,
		},
	})
}

// BuildTree links spans to their parents. The root is the span without a
// parent, or the first span when none qualifies.
func BuildTree(events []Event) *TraceNode {
	if len(events) == 0 {
		return nil
	}
	nodes := make(map[string]*TraceNode, len(events))
	ordered := make([]*TraceNode, 0, len(events))
	for _, e := range events {
		n := &TraceNode{Event: e, Children: []*TraceNode{}}
		nodes[e.SpanID] = n
		ordered = append(ordered, n)
	}

	var root *TraceNode
	for _, n := range ordered {
		if n.ParentSpanID == nil {
			if root == nil {
				root = n
			}
			continue
		}
		if parent, ok := nodes[*n.ParentSpanID]; ok {
			parent.Children = append(parent.Children, n)
		}
	}
	if root == nil {
		root = ordered[0]
	}
	return root
}

func eventsFromRows(rows []map[string]any) ([]Event, error) {
	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		e, err := eventFromRow(row)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func eventFromRow(row map[string]any) (Event, error) {
	created, err := store.Time(row["created_at"])
	if err != nil {
		return Event{}, fmt.Errorf("event created_at: %w", err)
	}
	e := Event{
		ID:           store.String(row["id"]),
		TraceID:      store.String(row["trace_id"]),
		SpanID:       store.String(row["span_id"]),
		ParentSpanID: optString(row["parent_span_id"]),
		EventType:    store.String(row["event_type"]),
		Source:       store.String(row["source"]),
		Component:    store.String(row["component"]),
		Action:       store.String(row["action"]),
		Subject:      optString(row["subject"]),
		RecordID:     optString(row["record_id"]),
		UserID:       optString(row["user_id"]),
		Status:       optString(row["status"]),
		CreatedAt:    created,
	}
	if row["duration_ms"] != nil {
		ms := toFloat(row["duration_ms"])
		e.DurationMs = &ms
	}
	switch meta := row["metadata"].(type) {
	case nil:
	case map[string]any:
		e.Metadata = meta
	default:
		if err := json.Unmarshal(store.Bytes(meta), &e.Metadata); err != nil {
			return Event{}, fmt.Errorf("event metadata: %w", err)
		}
	}
	return e, nil
}

func optString(v any) *string {
	if v == nil {
		return nil
	}
	s := store.String(v)
	return &s
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int32:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case []byte:
		f, _ := strconv.ParseFloat(string(n), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}
