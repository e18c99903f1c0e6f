package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	tokengate "github.com/venuekit/tokengate"
	"github.com/venuekit/tokengate/signature"
)

// enrolledDevice spins up an engine and walks a device through pairing so
// tests have a real credential to present.
func enrolledDevice(t *testing.T, deviceType string) (*tokengate.Engine, string) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	keys, err := signature.NewStaticKeyProvider("v1", []byte("middleware-test-signing-key-32-b"))
	if err != nil {
		t.Fatalf("NewStaticKeyProvider failed: %v", err)
	}

	cfg := tokengate.DefaultConfig()
	cfg.Credential.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Enrollment.Capabilities = map[string][]string{
		"gate": {"gate.redeem"},
		"pos":  {"ticket.issue"},
	}
	cfg.RateLimit.PairingLimit = 0
	cfg.RateLimit.EnrollLimit = 0

	engine, err := tokengate.New().
		WithConfig(cfg).
		WithRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()})).
		WithKeyProvider(keys).
		WithDeviceRegistry(stubRegistry{}).
		WithDirectory(stubDirectory{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := context.Background()
	grant, err := engine.GeneratePairing(ctx, tokengate.PairingRequest{
		TenantID: "t1", StoreID: "s1", DeviceType: deviceType,
	})
	if err != nil {
		t.Fatalf("GeneratePairing failed: %v", err)
	}
	result, err := engine.EnrollDevice(ctx, tokengate.EnrollmentRequest{
		Token: grant.ShortCode, DeviceType: deviceType, Fingerprint: "fp-mw",
	})
	if err != nil {
		t.Fatalf("EnrollDevice failed: %v", err)
	}

	return engine, result.DeviceToken
}

type stubRegistry struct{}

func (stubRegistry) CreateDevice(_ context.Context, input tokengate.CreateDeviceInput) (tokengate.DeviceRecord, error) {
	return tokengate.DeviceRecord{
		DeviceID:   "dev-mw",
		TenantID:   input.TenantID,
		StoreID:    input.StoreID,
		DeviceType: input.DeviceType,
	}, nil
}

type stubDirectory struct{}

func (stubDirectory) TenantExists(context.Context, string) (bool, error) { return true, nil }

func (stubDirectory) StoreExists(context.Context, string, string) (bool, error) { return true, nil }

func TestRequireDevice(t *testing.T) {
	engine, credential := enrolledDevice(t, "gate")

	var sawClaims bool
	handler := RequireDevice(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims.DeviceID == "" {
			t.Fatalf("handler ran without claims: %+v", claims)
		}
		sawClaims = true
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"garbage credential", "Bearer not-a-credential", http.StatusUnauthorized},
		{"valid credential", "Bearer " + credential, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/redeem", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
	}
	if !sawClaims {
		t.Fatal("valid credential never reached the handler")
	}
}

func TestRequireCapability(t *testing.T) {
	engine, credential := enrolledDevice(t, "gate")

	allowed := RequireCapability(engine, "gate.redeem")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	denied := RequireCapability(engine, "ticket.issue")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/redeem", nil)
	req.Header.Set("Authorization", "Bearer "+credential)
	rec := httptest.NewRecorder()
	allowed.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with matching capability, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/tickets", nil)
	req.Header.Set("Authorization", "Bearer "+credential)
	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without the capability, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/redeem", nil)
	rec = httptest.NewRecorder()
	allowed.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a credential, got %d", rec.Code)
	}
}
