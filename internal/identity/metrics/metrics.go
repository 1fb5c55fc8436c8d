package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the identity ledger.
type Metrics struct {
	IdentitiesCreated prometheus.Counter
	AdminMints        prometheus.Counter
	PaymentsForwarded prometheus.Counter
	ValueForwarded    prometheus.Counter
	MessagesSent      prometheus.Counter
	StorageWrites     prometheus.Counter
	Transfers         prometheus.Counter
}

// New creates and registers the ledger metrics.
func New() *Metrics {
	return &Metrics{
		IdentitiesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sigil_identities_created_total",
			Help: "Total number of identities minted, admin mints included",
		}),
		AdminMints: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sigil_admin_mints_total",
			Help: "Total number of identities minted through the admin path",
		}),
		PaymentsForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sigil_payments_forwarded_total",
			Help: "Total number of payments forwarded to the treasury",
		}),
		ValueForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sigil_value_forwarded_base_units_total",
			Help: "Total value forwarded to the treasury in base units",
		}),
		MessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sigil_messages_sent_total",
			Help: "Total number of ledger messages appended",
		}),
		StorageWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sigil_storage_writes_total",
			Help: "Total number of storage slot writes",
		}),
		Transfers: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sigil_identity_transfers_total",
			Help: "Total number of identity ownership transfers",
		}),
	}
}
