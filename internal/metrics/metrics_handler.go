package metrics

import (
	"sync"
	"time"

	"priceflow/logger"
)

// Metric is one structured metric event.
type Metric struct {
	Timestamp time.Time
	Component string
	Name      string
	Value     float64
	Unit      string
	Fields    logger.Fields
}

// MetricHandler consumes emitted metrics, e.g. to collect them in tests or
// forward them to another backend.
type MetricHandler func(Metric)

type MetricHandlerID uint64

var (
	metricHandlersMu    sync.RWMutex
	metricHandlers      = make(map[MetricHandlerID]MetricHandler)
	nextMetricHandlerID MetricHandlerID
)

// RegisterMetricHandler registers a handler that receives every emitted
// metric. A nil handler is ignored and yields the zero ID.
func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	if handler == nil {
		return 0
	}

	metricHandlersMu.Lock()
	defer metricHandlersMu.Unlock()

	nextMetricHandlerID++
	id := nextMetricHandlerID
	metricHandlers[id] = handler
	return id
}

func UnregisterMetricHandler(id MetricHandlerID) {
	if id == 0 {
		return
	}

	metricHandlersMu.Lock()
	delete(metricHandlers, id)
	metricHandlersMu.Unlock()
}

// recordMetric logs the event and hands it to every registered handler.
// "unit" in fields is lifted into Metric.Unit; "count" is the default.
func recordMetric(log *logger.Log, component, name string, value float64, fields logger.Fields) (Metric, bool) {
	if name == "" {
		return Metric{}, false
	}
	if log == nil {
		log = logger.GetLogger()
	}

	userFields := cloneFields(fields)
	unit := "count"
	if u, ok := userFields["unit"].(string); ok && u != "" {
		unit = u
	}
	delete(userFields, "unit")

	logFields := make(logger.Fields, len(userFields)+3)
	for k, v := range userFields {
		logFields[k] = v
	}
	logFields["metric"] = name
	logFields["value"] = value
	logFields["unit"] = unit
	log.WithComponent(component).WithFields(logFields).Info("metric")

	metric := Metric{
		Timestamp: time.Now(),
		Component: component,
		Name:      name,
		Value:     value,
		Unit:      unit,
		Fields:    userFields,
	}
	dispatchMetric(metric)
	return metric, true
}

func dispatchMetric(metric Metric) {
	metricHandlersMu.RLock()
	handlers := make([]MetricHandler, 0, len(metricHandlers))
	for _, handler := range metricHandlers {
		handlers = append(handlers, handler)
	}
	metricHandlersMu.RUnlock()

	for _, handler := range handlers {
		handler(metric)
	}
}

func cloneFields(fields logger.Fields) logger.Fields {
	copied := make(logger.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return copied
}
