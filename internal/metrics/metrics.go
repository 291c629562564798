// SPDX-License-Identifier: MIT

// Package metrics exposes prometheus collectors for the session daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagate_messages_sent_total",
		Help: "Total outbound messages delivered to the transport",
	}, []string{"kind"})

	SendRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wagate_send_retries_total",
		Help: "Total outbound delivery retry attempts",
	})

	SendFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagate_send_failures_total",
		Help: "Total outbound deliveries that exhausted their retry budget",
	}, []string{"class"})

	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wagate_reconnect_attempts_total",
		Help: "Total automatic reconnection attempts",
	})

	QRIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagate_qr_issued_total",
		Help: "Total pairing QR credentials issued by format",
	}, []string{"format"})

	QRExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wagate_qr_expired_total",
		Help: "Total pairing QR credentials explicitly expired",
	})

	PairingRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagate_pairing_rejected_total",
		Help: "Total pairing requests rejected before reaching the transport",
	}, []string{"reason"})

	ConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wagate_connection_state",
		Help: "Connection state (0 disconnected, 1 connecting or reconnecting, 2 connected)",
	})

	ConversationsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wagate_conversations_active",
		Help: "Currently tracked chatbot conversations",
	})

	ConversationTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wagate_conversation_timeouts_total",
		Help: "Conversations dropped by the inactivity watchdog",
	})
)

// RecordSend counts a delivered message of the given kind ("text", "image").
func RecordSend(kind string) {
	if kind == "" {
		kind = "text"
	}
	MessagesSentTotal.WithLabelValues(kind).Inc()
}

// RecordSendFailure counts an exhausted delivery with its error class.
func RecordSendFailure(class string) {
	if class == "" {
		class = "unknown"
	}
	SendFailuresTotal.WithLabelValues(class).Inc()
}

// RecordPairingRejected counts a pairing request rejected for the given reason.
func RecordPairingRejected(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	PairingRejectedTotal.WithLabelValues(reason).Inc()
}
