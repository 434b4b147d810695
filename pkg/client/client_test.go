package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_RecordDeployment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/deployments" {
			t.Errorf("Expected path /api/v1/deployments, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST method, got %s", r.Method)
		}
		if r.Header.Get("X-API-Key") != "my-api-key" {
			t.Errorf("Expected X-API-Key header, got %s", r.Header.Get("X-API-Key"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}

		var req DeploymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}

		if req.Contract != "DisasterResponseMining" {
			t.Errorf("Expected contract DisasterResponseMining, got %s", req.Contract)
		}
		if req.ChainID != 1114 {
			t.Errorf("Expected chainId 1114, got %d", req.ChainID)
		}
		if string(req.Record) != `{"gasUsed":"2400000"}` {
			t.Errorf("Expected embedded record, got %s", req.Record)
		}

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := New(server.URL+"/", "my-api-key")
	err := client.RecordDeployment(context.Background(), DeploymentRequest{
		Contract: "DisasterResponseMining",
		ChainID:  1114,
		Address:  "0x1234567890abcdef1234567890abcdef12345678",
		Record:   json.RawMessage(`{"gasUsed":"2400000"}`),
	})
	if err != nil {
		t.Fatalf("RecordDeployment() error = %v", err)
	}
}

func TestClient_GetDeployment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/deployments/1114/0x1234567890abcdef1234567890abcdef12345678" {
			t.Errorf("Expected path /api/v1/deployments/1114/0x1234567890abcdef1234567890abcdef12345678, got %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "" {
			t.Errorf("Expected no X-API-Key header, got %s", r.Header.Get("X-API-Key"))
		}

		json.NewEncoder(w).Encode(map[string]any{
			"id":           "deploy-123",
			"contractName": "DisasterResponseMining",
			"chainId":      "1114",
			"address":      "0x1234567890abcdef1234567890abcdef12345678",
			"blockNumber":  12345,
			"status":       "success",
			"createdAt":    "2024-01-15T10:30:00Z",
		})
	}))
	defer server.Close()

	client := New(server.URL, "")
	deployment, err := client.GetDeployment(context.Background(), "1114", "0x1234567890abcdef1234567890abcdef12345678")
	if err != nil {
		t.Fatalf("GetDeployment() error = %v", err)
	}

	if deployment.ID != "deploy-123" {
		t.Errorf("GetDeployment().ID = %s, want deploy-123", deployment.ID)
	}
	if deployment.BlockNumber != 12345 {
		t.Errorf("GetDeployment().BlockNumber = %d, want 12345", deployment.BlockNumber)
	}
	if deployment.Status != "success" {
		t.Errorf("GetDeployment().Status = %s, want success", deployment.Status)
	}
}

func TestClient_ErrorHandling(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCode   string
		wantStatus int
	}{
		{
			name:       "structured error",
			status:     http.StatusConflict,
			body:       `{"error":{"code":"ALREADY_EXISTS","message":"Deployment already recorded"}}`,
			wantCode:   "ALREADY_EXISTS",
			wantStatus: http.StatusConflict,
		},
		{
			name:       "plain text error",
			status:     http.StatusBadGateway,
			body:       "upstream down",
			wantCode:   "HTTP_ERROR",
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := New(server.URL, "")
			err := client.RecordDeployment(context.Background(), DeploymentRequest{Contract: "X", ChainID: 1})
			if err == nil {
				t.Fatal("Expected error for failed response")
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected APIError, got %T", err)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, apiErr.Code)
			}
			if apiErr.Status != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, apiErr.Status)
			}
		})
	}
}
