package ads

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_requests_sent_total",
			Help: "ADS requests sent, by command.",
		}, []string{"command"})

	requestsTimedOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_requests_timeout_total",
			Help: "ADS requests that failed with RequestTimeout, by command.",
		}, []string{"command"})

	adsErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_device_errors_total",
			Help: "Nonzero ADS error codes received, by code.",
		}, []string{"code"})

	reconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ads_reconnect_attempts_total",
			Help: "Reconnect attempts started after a transport close.",
		})

	activeNotificationHandles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ads_notification_handles_active",
			Help: "Currently registered device notification handles.",
		})

	bytesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ads_bytes_read_total",
			Help: "Bytes read from the AMS/TCP socket.",
		})

	bytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ads_bytes_written_total",
			Help: "Bytes written to the AMS/TCP socket.",
		})
)
