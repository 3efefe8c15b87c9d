// Package policy decides, per message, whether a change is eligible to be
// applied in the local region. It performs no I/O.
package policy

import (
	"github.com/regionsync/inbound-sync/internal/config"
	"github.com/regionsync/inbound-sync/internal/envelope"
)

// Decision is the outcome of evaluating the policy matrix.
type Decision struct {
	Accepted bool
	Reason   string
}

func accept() Decision          { return Decision{Accepted: true} }
func reject(reason string) Decision { return Decision{Accepted: false, Reason: reason} }

// Evaluate applies the policy matrix. local is the region this instance is
// bound to; the change's SyncOrigin is the source the matrix compares
// against.
func Evaluate(local config.Region, change *envelope.Change) Decision {
	source := change.SyncOrigin

	if change.Table == "users" {
		return reject("privacy_users_never_sync")
	}

	// Echoes of our own writes returning through CDC are never for us,
	// regardless of table.
	if source == local {
		switch {
		case change.Table == "sales":
			return reject("directional_sales_one_way")
		default:
			return reject("not_for_local")
		}
	}

	switch change.Table {
	case "products":
		if change.Op == envelope.OpCreate {
			return reject("directional_products_create_local_only")
		}
		return accept()
	case "sales":
		return accept()
	default:
		return reject("not_for_local")
	}
}
