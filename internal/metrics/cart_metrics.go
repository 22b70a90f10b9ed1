package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout results used as label values.
const (
	CheckoutSuccess       = "success"
	CheckoutRejected      = "rejected"
	CheckoutEmpty         = "empty"
	CheckoutUnreachable   = "unreachable"
	CheckoutStoreError    = "store_error"
	DependencyStore       = "store"
	DependencyStockCheck  = "stock_check"
	DependencyOrderSubmit = "order_service"
	DependencyEvents      = "events"
)

// CartMetrics holds the cart service's Prometheus collectors. A nil
// *CartMetrics is valid and records nothing.
type CartMetrics struct {
	itemsAdded       prometheus.Counter
	stockRejections  prometheus.Counter
	checkouts        *prometheus.CounterVec
	dependencyErrors *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
}

func NewCartMetrics() *CartMetrics {
	return NewCartMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewCartMetricsWithRegisterer(registerer prometheus.Registerer) *CartMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CartMetrics{
		itemsAdded: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cart_items_added_total",
			Help: "Total number of items admitted into carts",
		})),
		stockRejections: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cart_stock_rejections_total",
			Help: "Total number of add-item calls rejected as out of stock",
		})),
		checkouts: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_checkouts_total",
			Help: "Total number of checkout attempts by result",
		}, []string{"result"})),
		dependencyErrors: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_dependency_errors_total",
			Help: "Total number of failed calls to cart dependencies",
		}, []string{"dependency"})),
		checkoutDuration: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cart_checkout_duration_seconds",
			Help:    "Duration of checkout calls in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		})),
	}
}

// register returns the already registered collector when one with the same
// description exists, so building metrics twice in one process is safe.
func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", alreadyRegistered.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

func (m *CartMetrics) RecordItemAdded() {
	if m == nil {
		return
	}
	m.itemsAdded.Inc()
}

func (m *CartMetrics) RecordStockRejection() {
	if m == nil {
		return
	}
	m.stockRejections.Inc()
}

func (m *CartMetrics) RecordCheckout(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

func (m *CartMetrics) RecordDependencyError(dependency string) {
	if m == nil {
		return
	}
	m.dependencyErrors.WithLabelValues(dependency).Inc()
}
