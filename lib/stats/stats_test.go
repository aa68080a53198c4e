package stats

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHandlerExposesRecordedMetrics(t *testing.T) {
	StoreCommit(time.Now(), false, false)
	StoreCommit(time.Now(), true, false)
	RPCCall("pool", "read_pool", time.Now(), "")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "dctl_confstore_commits_total"))
	assert.True(t, strings.Contains(body, "dctl_confstore_conflicts_total"))
	assert.True(t, strings.Contains(body, `dctl_rpc_calls_total{service="pool",method="read_pool",code="OK"}`))
}
