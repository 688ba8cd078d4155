// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/visuworld/visuworld/internal/store"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		return out, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "generate-shader",
		Method:      http.MethodPost,
		Path:        "/generate_shader",
		Summary:     "Generate a new shader from a prompt",
		Tags:        []string{"shaders"},
	}, s.handleGenerateShader)

	huma.Register(s.api, huma.Operation{
		OperationID: "modify-shader",
		Method:      http.MethodPost,
		Path:        "/modify_shader",
		Summary:     "Modify existing shader code according to a prompt",
		Tags:        []string{"shaders"},
	}, s.handleModifyShader)

	huma.Register(s.api, huma.Operation{
		OperationID:   "save-shader",
		Method:        http.MethodPost,
		Path:          "/save_shader",
		Summary:       "Save a shader to the gallery",
		Tags:          []string{"gallery"},
		DefaultStatus: http.StatusOK,
	}, s.handleSaveShader)

	huma.Register(s.api, huma.Operation{
		OperationID: "retrieve-shaders",
		Method:      http.MethodGet,
		Path:        "/retrieve_shaders",
		Summary:     "List saved shaders, one page at a time",
		Tags:        []string{"gallery"},
	}, s.handleRetrieveShaders)

	huma.Register(s.api, huma.Operation{
		OperationID: "retrieve-shader",
		Method:      http.MethodGet,
		Path:        "/retrieve_shader",
		Summary:     "Get one saved shader",
		Tags:        []string{"gallery"},
	}, s.handleRetrieveShader)

	if s.services.Providers() != nil {
		huma.Register(s.api, huma.Operation{
			OperationID: "provider-health",
			Method:      http.MethodGet,
			Path:        "/api/v1/providers/{name}/health",
			Summary:     "Generation provider health",
			Tags:        []string{"system"},
		}, s.handleProviderHealth)
	}
}

// --- Request/Response types for huma ---

type healthOutput struct {
	Body struct {
		Status string `json:"status" example:"ok" doc:"Health status"`
	}
}

type generateShaderInput struct {
	Body struct {
		Prompt string `json:"prompt" doc:"What the shader should draw" example:"a rotating cube in 3D"`
		IsPro  bool   `json:"isPro,omitempty" doc:"Use the pro model tier"`
	}
}

type modifyShaderInput struct {
	Body struct {
		Prompt string `json:"prompt" doc:"How to change the shader" example:"add a moving light source"`
		Code   string `json:"code" doc:"The shader code to modify"`
		IsPro  bool   `json:"isPro,omitempty" doc:"Use the pro model tier"`
	}
}

type shaderOutput struct {
	Body struct {
		Shader string `json:"shader" doc:"Cleaned GLSL fragment shader"`
	}
}

type saveShaderInput struct {
	Body struct {
		Prompt      string `json:"prompt" doc:"The prompt that produced the shader"`
		Code        string `json:"code" doc:"GLSL source"`
		Description string `json:"description" doc:"Free-form description"`
	}
}

type saveShaderOutput struct {
	Body struct {
		Message    string `json:"message" example:"Shader saved successfully"`
		InsertedID string `json:"inserted_id" doc:"ID of the saved shader"`
	}
}

type retrieveShadersInput struct {
	Page int `query:"page" default:"1" minimum:"1" doc:"1-based page number"`
}

type retrieveShadersOutput struct {
	Body struct {
		Shaders []*store.SavedShader `json:"shaders"`
	}
}

type retrieveShaderInput struct {
	ShaderID string `query:"shader_id" required:"true" doc:"Saved shader ID"`
}

type retrieveShaderOutput struct {
	Body *store.SavedShader
}

type providerHealthInput struct {
	Name string `path:"name" doc:"Provider name"`
}

type providerHealthOutput struct {
	Body ProviderHealthDetail
}

// --- Handlers ---

func (s *Server) handleGenerateShader(ctx context.Context, input *generateShaderInput) (*shaderOutput, error) {
	code, err := s.services.Generator().GenerateShader(ctx, input.Body.Prompt, input.Body.IsPro)
	if err != nil {
		return nil, toHTTPError(err, "generating shader")
	}
	out := &shaderOutput{}
	out.Body.Shader = code
	return out, nil
}

func (s *Server) handleModifyShader(ctx context.Context, input *modifyShaderInput) (*shaderOutput, error) {
	code, err := s.services.Generator().ModifyShader(ctx, input.Body.Prompt, input.Body.Code, input.Body.IsPro)
	if err != nil {
		return nil, toHTTPError(err, "modifying shader")
	}
	out := &shaderOutput{}
	out.Body.Shader = code
	return out, nil
}

func (s *Server) handleSaveShader(ctx context.Context, input *saveShaderInput) (*saveShaderOutput, error) {
	shader := &store.SavedShader{
		Prompt:      input.Body.Prompt,
		Code:        input.Body.Code,
		Description: input.Body.Description,
	}
	if err := s.services.Shaders().Save(ctx, shader); err != nil {
		if vwerr.IsConflict(err) {
			existing, _ := vwerr.FieldsOf(err)["shader_id"].(string)
			return nil, huma.Error409Conflict(
				fmt.Sprintf("Shader with the given prompt already exists. ID: %s", existing))
		}
		return nil, toHTTPError(err, "saving shader")
	}

	out := &saveShaderOutput{}
	out.Body.Message = "Shader saved successfully"
	out.Body.InsertedID = shader.ID
	return out, nil
}

func (s *Server) handleRetrieveShaders(ctx context.Context, input *retrieveShadersInput) (*retrieveShadersOutput, error) {
	page := max(input.Page, 1)
	size := s.services.PageSize()
	shaders, err := s.services.Shaders().List(ctx, store.ListOpts{Limit: size, Offset: (page - 1) * size})
	if err != nil {
		return nil, toHTTPError(err, "listing shaders")
	}

	out := &retrieveShadersOutput{}
	out.Body.Shaders = shaders
	if out.Body.Shaders == nil {
		out.Body.Shaders = []*store.SavedShader{}
	}
	return out, nil
}

func (s *Server) handleRetrieveShader(ctx context.Context, input *retrieveShaderInput) (*retrieveShaderOutput, error) {
	shader, err := s.services.Shaders().Get(ctx, input.ShaderID)
	if err != nil {
		if vwerr.IsNotFound(err) {
			return nil, huma.Error404NotFound("Shader not found")
		}
		return nil, toHTTPError(err, "getting shader")
	}
	return &retrieveShaderOutput{Body: shader}, nil
}

func (s *Server) handleProviderHealth(ctx context.Context, input *providerHealthInput) (*providerHealthOutput, error) {
	m, err := s.services.Providers().Health(ctx, input.Name)
	if err != nil {
		if vwerr.IsNotFound(err) {
			return nil, huma.Error404NotFound(fmt.Sprintf("provider %q not found", input.Name))
		}
		return nil, toHTTPError(err, "getting provider health")
	}
	return &providerHealthOutput{Body: newProviderHealthDetail(input.Name, m)}, nil
}

// toHTTPError maps a coded error onto its HTTP status. Server-side failures
// are logged; their details stay out of the response body.
func toHTTPError(err error, op string) error {
	status := vwerr.HTTPStatus(err)
	code := vwerr.CodeOf(err)
	attrs := []any{
		"op", op,
		"code", code,
		"stage", vwerr.StageOf(err),
		"upstream_status", vwerr.UpstreamStatusOf(err),
		"retryable", vwerr.IsRetryable(err),
		"error", err,
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", attrs...)
		msg := http.StatusText(status)
		if code != "" {
			msg = fmt.Sprintf("%s: %s", op, code)
		}
		return huma.NewError(status, msg)
	}
	slog.Info("request rejected", attrs...)
	return huma.NewError(status, fmt.Sprintf("%s: %s", op, err.Error()))
}
