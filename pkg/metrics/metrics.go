// Package metrics 提供 Prometheus helper，覆盖账本、缓存、总线与商店交易指标
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/gameeconomy/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// 账本变更操作计数（按操作类型区分）
	LedgerOpsTotal *prometheus.CounterVec
	// CAS 写入冲突计数
	CASConflictsTotal prometheus.Counter
	// CAS 重试耗尽计数
	CASExhaustedTotal prometheus.Counter
	// 本地缓存命中计数
	CacheHitsTotal prometheus.Counter
	// 本地缓存未命中计数
	CacheMissesTotal prometheus.Counter
	// 总线发布计数
	BusPublishTotal prometheus.Counter
	// 总线发布失败计数
	BusPublishFailures prometheus.Counter
	// 总线收到的失效通知计数
	BusInvalidations prometheus.Counter
	// 商店交易计数（按方向区分）
	ShopTransactionsTotal *prometheus.CounterVec
	// 商店交易中止计数
	ShopAbortsTotal prometheus.Counter
	// 审计记录丢弃计数
	AuditDroppedTotal prometheus.Counter
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		LedgerOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: serviceName,
			Name:      "ledger_ops_total",
			Help:      "Total ledger mutations by operation",
		}, []string{"op"}),
		CASConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: serviceName,
			Name:      "cas_conflicts_total",
			Help:      "Total version conflicts during CAS writes",
		}),
		CASExhaustedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: serviceName,
			Name:      "cas_exhausted_total",
			Help:      "Total mutations that exhausted CAS retries",
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: serviceName,
			Name:      "cache_hits_total",
			Help:      "Total local cache hits",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: serviceName,
			Name:      "cache_misses_total",
			Help:      "Total local cache misses",
		}),
		BusPublishTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: serviceName,
			Name:      "bus_publish_total",
			Help:      "Total notifications published to the sync bus",
		}),
		BusPublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: serviceName,
			Name:      "bus_publish_failures_total",
			Help:      "Total sync bus publish failures (swallowed)",
		}),
		BusInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: serviceName,
			Name:      "bus_invalidations_total",
			Help:      "Total cache invalidations triggered by bus notifications",
		}),
		ShopTransactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: serviceName,
			Name:      "shop_transactions_total",
			Help:      "Total completed shop transactions by direction",
		}, []string{"direction"}),
		ShopAbortsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: serviceName,
			Name:      "shop_aborts_total",
			Help:      "Total shop transactions aborted before mutation",
		}),
		AuditDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "economy",
			Subsystem: serviceName,
			Name:      "audit_dropped_total",
			Help:      "Total audit records dropped due to a full queue",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.LedgerOpsTotal,
		m.CASConflictsTotal,
		m.CASExhaustedTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.BusPublishTotal,
		m.BusPublishFailures,
		m.BusInvalidations,
		m.ShopTransactionsTotal,
		m.ShopAbortsTotal,
		m.AuditDroppedTotal,
	}

	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int) {
	http.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()
}
