package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterPerTenant(t *testing.T) {
	rl := NewRateLimiter(0.0001, 1)
	mux := http.NewServeMux()
	mux.Handle("POST /restaurants/{restaurantID}/orders", rl.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})))

	do := func(tenant string) int {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/restaurants/"+tenant+"/orders", nil))
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, do("r1"))
	assert.Equal(t, http.StatusTooManyRequests, do("r1"))
	assert.Equal(t, http.StatusCreated, do("r2"))
}
