package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-scan/internal/application/dto"
	"github.com/jhoicas/inventario-scan/pkg/jwt"
	"github.com/jhoicas/inventario-scan/pkg/logger"
)

const (
	testJWTSecret = "clave-de-pruebas-estacion"
	testUserID    = "op-0042"
	testStationID = "ST-RECEPCION-01"
)

// tokenForRole Authorization listo para usar con un token del operario de pruebas.
func tokenForRole(t *testing.T, role string) string {
	t.Helper()
	tok, err := jwt.Generate(testJWTSecret, testUserID, testStationID, role, "inventario-scan", 30)
	require.NoError(t, err)
	return "Bearer " + tok
}

// syncBuffer destino del log compartido por las goroutines de la sesión.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		var m map[string]any
		if json.Unmarshal([]byte(l), &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

func getOrder(t *testing.T, authHeader string) (int, string) {
	t.Helper()
	app := buildOrdersApp(t, &stubGateway{})
	req := httptest.NewRequest(http.MethodGet, "/api/orders/O-1", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var e dto.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&e)
	return resp.StatusCode, e.Code
}

func TestOrders_TokenRechazado(t *testing.T) {
	otro, err := jwt.Generate("otra-clave", testUserID, testStationID, jwt.RoleOperator, "inventario-scan", 30)
	require.NoError(t, err)
	vencido, err := jwt.Generate(testJWTSecret, testUserID, testStationID, jwt.RoleOperator, "inventario-scan", -1)
	require.NoError(t, err)
	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{name: "sin cabecera", header: "", status: http.StatusUnauthorized, code: "MISSING_TOKEN"},
		{name: "esquema Basic", header: "Basic b3A6MTIz", status: http.StatusUnauthorized, code: "INVALID_TOKEN"},
		{name: "firmado con otra clave", header: "Bearer " + otro, status: http.StatusUnauthorized, code: "INVALID_TOKEN"},
		{name: "vencido", header: "Bearer " + vencido, status: http.StatusUnauthorized, code: "INVALID_TOKEN"},
		{name: "sin rol", header: tokenForRole(t, ""), status: http.StatusUnauthorized, code: "MISSING_ROLE"},
		{name: "rol desconocido", header: tokenForRole(t, "bodeguero"), status: http.StatusForbidden, code: "FORBIDDEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code := getOrder(t, tc.header)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestOrders_OperadorConsultaSinSesion(t *testing.T) {
	// pasa la autenticación y llega al handler, que responde que no hay sesión
	status, code := getOrder(t, tokenForRole(t, jwt.RoleOperator))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", code)
}

func TestConfirm_RolesPorOperario(t *testing.T) {
	cases := []struct {
		role   string
		status int
	}{
		{role: jwt.RoleOperator, status: http.StatusForbidden},
		{role: jwt.RoleSupervisor, status: http.StatusOK},
		{role: jwt.RoleAdmin, status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.role, func(t *testing.T) {
			app := buildOrdersApp(t, &stubGateway{judge: true})
			openSession(t, app)

			resp, body := call(t, app, http.MethodPost, "/api/orders/O-1/confirm", tc.role, nil)
			assert.Equal(t, tc.status, resp.StatusCode, string(body))
		})
	}
}

func TestOpenSession_RegistraOperarioYEstacion(t *testing.T) {
	out := &syncBuffer{}
	log := logger.New(logger.Config{Env: "production", Level: "info", Out: out})
	app := buildOrdersAppWithLog(t, &stubGateway{}, log)

	openSession(t, app)

	var found map[string]any
	for _, l := range out.lines() {
		if l["message"] == "sesión abierta" {
			found = l
		}
	}
	require.NotNil(t, found, "el handler debe registrar la apertura")
	assert.Equal(t, testUserID, found["user_id"])
	assert.Equal(t, testStationID, found["station_id"])
	assert.Equal(t, "O-1", found["order_id"])
	assert.Equal(t, "order_handler", found["component"])
}
