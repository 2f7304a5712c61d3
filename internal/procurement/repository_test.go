package procurement

import (
	"strings"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/procurement/workflow"
)

func TestUpdateDocKeepsUpdatedAtMonotonic(t *testing.T) {
	b := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	po := PurchaseOrder{Code: "PO-20260314-0001", Status: workflow.Sent, UpdatedAt: at}

	sql, args, err := updateDocSQL(b, poTable, po, []byte(`{}`))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sql, "UPDATE purchase_orders SET "), sql)
	require.Contains(t, sql, "updated_at = GREATEST(updated_at, $")
	require.Contains(t, sql, "WHERE code = $")
	require.Contains(t, args, any(at))
	require.Equal(t, "PO-20260314-0001", args[len(args)-1])
}
