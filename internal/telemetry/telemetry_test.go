package telemetry

import (
	"context"
	"testing"

	"cosmossdk.io/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLedgerMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)
	m.GamesCreated.Inc()
	m.GamesSettled.WithLabelValues("Win").Inc()
	m.TxRejected.WithLabelValues("rps/create_game", "rps", "4").Inc()

	require.Equal(t, 1.0, testutil.ToFloat64(m.GamesCreated))
	require.Equal(t, 1.0, testutil.ToFloat64(m.GamesSettled.WithLabelValues("Win")))

	n, err := testutil.GatherAndCount(reg, "rps_ledger_games_created_total", "rps_ledger_tx_rejected_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestNilRegistererStillCounts(t *testing.T) {
	m := NewGatewayMetrics(nil)
	m.Requests.WithLabelValues("ok").Inc()
	require.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("ok")))
}

func TestServe_EmptyAddrDisabled(t *testing.T) {
	require.NoError(t, Serve(context.Background(), "", prometheus.NewRegistry(), log.NewNopLogger()))
}
