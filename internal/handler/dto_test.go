package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/devrev/tempvoice/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"new_owner_id":"m-2"}`, false},
		{"unknown field", `{"new_owner_id":"m-2","admin":true}`, true},
		{"malformed", `{"new_owner_id":`, true},
		{"empty", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var body TransferRequest
			err := decodeJSON(req, &body)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "m-2", body.NewOwnerID)
		})
	}
}

func TestTenantConfigDTO_ApplyToKeepsOmittedFields(t *testing.T) {
	cfg := model.DefaultTenantConfig("t1")
	cfg.TriggerPoints = []string{"lobby"}
	cfg.DefaultCategoryID = "cat-1"

	capacity := 4
	template := "{displayname} hangout"
	TenantConfigDTO{Capacity: &capacity, NamingTemplate: &template}.applyTo(cfg)

	assert.Equal(t, 4, cfg.Capacity)
	assert.Equal(t, "{displayname} hangout", cfg.NamingTemplate)
	assert.Equal(t, []string{"lobby"}, cfg.TriggerPoints)
	assert.Equal(t, "cat-1", cfg.DefaultCategoryID)
	assert.True(t, cfg.Enabled)

	disabled := false
	TenantConfigDTO{Enabled: &disabled, TriggerPoints: []string{}}.applyTo(cfg)
	assert.False(t, cfg.Enabled)
	assert.Empty(t, cfg.TriggerPoints)
}

func TestTenantConfigDTO_RoundTripsDefaults(t *testing.T) {
	cfg := model.DefaultTenantConfig("t1")
	dto := tenantConfigDTO(cfg)

	assert.Equal(t, "t1", dto.TenantID)
	assert.NotNil(t, dto.TriggerPoints)
	require.NotNil(t, dto.Capacity)
	assert.Equal(t, cfg.Capacity, *dto.Capacity)

	out := model.DefaultTenantConfig("t1")
	out.Capacity = 1
	dto.applyTo(out)
	assert.Equal(t, cfg.Capacity, out.Capacity)
}
