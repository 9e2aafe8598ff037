package api

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

//go:embed openapi.yaml
var openapiYAML []byte

var loadSpec = sync.OnceValues(func() (*openapi3.T, error) {
	doc, err := openapi3.NewLoader().LoadFromData(openapiYAML)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi spec: %w", err)
	}
	return doc, nil
})

// Spec returns the API's OpenAPI document.
func Spec() (*openapi3.T, error) {
	return loadSpec()
}

func serveSpec(w http.ResponseWriter, _ *http.Request) {
	doc, err := Spec()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// RequestValidator returns middleware that rejects requests whose parameters
// or body do not match the OpenAPI document. Requests for undocumented routes
// are passed through so the router answers them.
func RequestValidator() (func(http.Handler) http.Handler, error) {
	doc, err := Spec()
	if err != nil {
		return nil, err
	}
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	opts := &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc}
	opts.WithCustomSchemaErrorFunc(schemaErrorMessage)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, params, err := router.FindRoute(r)
			if err != nil {
				var routeErr *routers.RouteError
				if errors.As(err, &routeErr) {
					next.ServeHTTP(w, r)
					return
				}
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			err = openapi3filter.ValidateRequest(r.Context(), &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: params,
				Route:      route,
				Options:    opts,
			})
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

// schemaErrorMessage reports the failing field and reason without dumping
// the schema and value.
func schemaErrorMessage(err *openapi3.SchemaError) string {
	if path := err.JSONPointer(); len(path) > 0 {
		return strings.Join(path, ".") + ": " + err.Reason
	}
	return err.Reason
}
