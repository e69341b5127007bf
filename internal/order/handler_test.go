package order

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/logger"
)

func setupRouter() (*gin.Engine, *fakePublisher) {
	gin.SetMode(gin.TestMode)
	pub := &fakePublisher{}
	svc := NewService(pub, testQueues(), logger.NopLogger())
	router := gin.New()
	NewHandler(svc, logger.NopLogger()).Register(router)
	return router, pub
}

func TestCreateOrderEndpoint(t *testing.T) {
	router, pub := setupRouter()

	body := `{
		"customerId": "CUST-100",
		"customerEmail": "customer@example.com",
		"items": [{"productId": "PROD-1", "sku": "SKU-1", "quantity": 3, "unitPrice": 999.99}],
		"currency": "USD",
		"shippingAddress": {"street": "1 Main St", "city": "Springfield"}
	}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"totalAmount":2999.97`)
	assert.Contains(t, w.Body.String(), `"status":"PENDING"`)
	assert.Len(t, pub.published, 3)
}

func TestCreateOrderEndpointValidation(t *testing.T) {
	router, pub := setupRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"customerId": ""}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
	assert.Contains(t, w.Body.String(), "violations")
	assert.Empty(t, pub.published)
}

func TestCreateOrderEndpointMalformedBody(t *testing.T) {
	router, _ := setupRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{not json`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "BAD_REQUEST")
}
