package normalize

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cast"

	"github.com/pulsestack/pulse-monitor/internal/models"
	"github.com/pulsestack/pulse-monitor/internal/utils"
)

// Fallbacks applied when a source document carries none of the known shapes.
const (
	DefaultService    = "unknown"
	DefaultEndpoint   = "/unknown"
	DefaultMethod     = "GET"
	DefaultStatusCode = 200
)

// ErrBadTimestamp rejects a document whose timestamp is absent or unparseable.
// Defaulting to "now" would assign the record to the wrong window, so these
// documents are dropped instead.
var ErrBadTimestamp = errors.New("missing or unparseable timestamp")

// Normalizer maps heterogeneous raw event documents into canonical LogRecords.
// Field extraction prefers the canonical nested shape (service.name,
// request.*, response.*), falls back to the legacy http.* shape, and finally
// to fixed defaults. The transform is pure; the only failure mode is a
// timestamp reject.
type Normalizer struct {
	logger *slog.Logger
}

// New constructs a Normalizer.
func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize converts one raw source document into a LogRecord.
func (n *Normalizer) Normalize(source map[string]any) (models.LogRecord, error) {
	raw, ok := firstString(source, "@timestamp", "timestamp")
	if !ok {
		return models.LogRecord{}, fmt.Errorf("%w: no timestamp field", ErrBadTimestamp)
	}
	ts, err := utils.ParseTimestamp(raw)
	if err != nil {
		return models.LogRecord{}, fmt.Errorf("%w: %v", ErrBadTimestamp, err)
	}

	record := models.LogRecord{
		Timestamp:  ts,
		Service:    extractService(source),
		Endpoint:   DefaultEndpoint,
		Method:     DefaultMethod,
		StatusCode: DefaultStatusCode,
	}

	request := subDocument(source, "request")
	httpDoc := subDocument(source, "http")

	if v, ok := lookupString(request, "endpoint"); ok {
		record.Endpoint = v
	} else if v, ok := lookupString(httpDoc, "target"); ok {
		record.Endpoint = v
	}

	if v, ok := lookupString(request, "method"); ok {
		record.Method = v
	} else if v, ok := lookupString(httpDoc, "method"); ok {
		record.Method = v
	}

	response := subDocument(source, "response")
	if v, ok := lookupInt(response, "status_code"); ok {
		record.StatusCode = v
	} else if v, ok := lookupInt(httpDoc, "status_code"); ok {
		record.StatusCode = v
	}

	if v, ok := lookupFloat(response, "duration_ms"); ok {
		record.DurationMs = v
	} else if v, ok := lookupFloat(source, "duration_ms"); ok {
		record.DurationMs = v
	}

	// An explicit is_error flag from the source wins over the status rule.
	if v, exists := source["is_error"]; exists {
		record.IsError = cast.ToBool(v)
	} else {
		record.IsError = record.StatusCode >= 400
	}

	return record, nil
}

// NormalizeBatch converts a batch of raw documents, dropping rejects. It
// returns the surviving records and the reject count.
func (n *Normalizer) NormalizeBatch(sources []map[string]any) ([]models.LogRecord, int) {
	records := make([]models.LogRecord, 0, len(sources))
	rejected := 0
	for _, source := range sources {
		record, err := n.Normalize(source)
		if err != nil {
			rejected++
			n.logger.Debug("record rejected", slog.Any("error", err))
			continue
		}
		records = append(records, record)
	}
	return records, rejected
}

// extractService handles the three service shapes seen in the wild: the
// nested {"service":{"name":...}} form, a plain string, and the OTel
// {"labels":{"service":...}} form.
func extractService(source map[string]any) string {
	switch v := source["service"].(type) {
	case map[string]any:
		if name, ok := lookupString(v, "name"); ok {
			return name
		}
	case string:
		if v != "" {
			return v
		}
	}
	if labels := subDocument(source, "labels"); labels != nil {
		if name, ok := lookupString(labels, "service"); ok {
			return name
		}
	}
	return DefaultService
}

func subDocument(source map[string]any, key string) map[string]any {
	if source == nil {
		return nil
	}
	sub, _ := source[key].(map[string]any)
	return sub
}

func firstString(source map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := lookupString(source, key); ok {
			return v, true
		}
	}
	return "", false
}

func lookupString(doc map[string]any, key string) (string, bool) {
	if doc == nil {
		return "", false
	}
	v, exists := doc[key]
	if !exists {
		return "", false
	}
	s := cast.ToString(v)
	if s == "" {
		return "", false
	}
	return s, true
}

func lookupInt(doc map[string]any, key string) (int, bool) {
	if doc == nil {
		return 0, false
	}
	v, exists := doc[key]
	if !exists {
		return 0, false
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func lookupFloat(doc map[string]any, key string) (float64, bool) {
	if doc == nil {
		return 0, false
	}
	v, exists := doc[key]
	if !exists {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}
