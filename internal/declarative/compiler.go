package declarative

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"duckflow/internal/domain"
	"duckflow/internal/quality"
	"duckflow/internal/service/pipeline"
	"duckflow/internal/sqltemplate"
)

// CompileOptions configures compilation.
type CompileOptions struct {
	// Templates, when set, is used to reject unknown select templates at
	// compile time.
	Templates *sqltemplate.Catalog
}

// Compile validates the state and turns every pipeline into a definition
// ready for registration. All validation problems are reported together.
func Compile(state *DesiredState, opts CompileOptions) ([]pipeline.Definition, error) {
	if verrs := Validate(state); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return nil, domain.ErrValidation("invalid pipeline definitions:\n%v", errors.Join(errs...))
	}

	defs := make([]pipeline.Definition, 0, len(state.Pipelines))
	for _, p := range state.Pipelines {
		def, err := CompilePipeline(p, opts)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// CompilePipeline turns one pipeline document into a definition. The
// document is assumed to have passed Validate.
func CompilePipeline(p PipelineResource, opts CompileOptions) (pipeline.Definition, error) {
	spec := p.Spec
	b := pipeline.NewBuilder(p.Name)
	for _, t := range spec.Tasks {
		node, err := compileTask(t, spec.Defaults, opts)
		if err != nil {
			return pipeline.Definition{}, fmt.Errorf("pipeline %s: task %s: %w", p.Name, t.Name, err)
		}
		b.AddNode(node)
	}
	g, err := b.Build()
	if err != nil {
		return pipeline.Definition{}, err
	}

	def := pipeline.Definition{
		Graph:       g,
		Description: spec.Description,
		Schedule:    spec.Schedule,
		Paused:      spec.IsPaused,
		Params:      spec.Params,
	}
	if spec.MaxActiveRuns != nil {
		def.MaxActiveRuns = *spec.MaxActiveRuns
	}
	if spec.MaxParallel != nil {
		def.Options.MaxParallel = *spec.MaxParallel
	}
	if spec.StartRate > 0 {
		def.Options.StartRate = rate.Limit(spec.StartRate)
		def.Options.StartBurst = 1
	}
	return def, def.Validate()
}

func compileTask(t TaskSpec, d TaskDefaults, opts CompileOptions) (domain.TaskNode, error) {
	node := domain.TaskNode{
		Name:     t.Name,
		Kind:     domain.TaskKind(t.Kind),
		Upstream: t.DependsOn,
	}

	var err error
	if node.Retry, err = compileRetry(t, d); err != nil {
		return domain.TaskNode{}, err
	}
	if node.Timeout, err = parseDuration(firstNonEmpty(t.Timeout, d.Timeout)); err != nil {
		return domain.TaskNode{}, fmt.Errorf("timeout: %w", err)
	}

	switch {
	case t.Stage != nil:
		s := t.Stage
		cfg := &domain.StageConfig{
			Table:        s.Table,
			Source:       s.Source,
			Format:       domain.DataFormat(strings.ToLower(firstNonEmpty(s.Format, string(domain.DataFormatJSON)))),
			Delimiter:    s.Delimiter,
			IgnoreHeader: s.IgnoreHeader,
			JSONPaths:    s.JSONPaths,
			Credential:   firstNonEmpty(s.Credential, d.Credential),
		}
		for _, o := range s.Options {
			cfg.Options = append(cfg.Options, domain.CopyOption{Key: o.Key, Value: o.Value})
		}
		node.Stage = cfg
	case t.Load != nil:
		l := t.Load
		if l.Template != "" && opts.Templates != nil {
			if _, err := opts.Templates.Resolve(l.Template); err != nil {
				return domain.TaskNode{}, err
			}
		}
		mode := domain.UpdateMode(l.Mode)
		if mode == "" {
			mode = domain.DefaultLoadMode(node.Kind)
		}
		node.Load = &domain.LoadConfig{
			Table:          l.Table,
			Select:         l.Select,
			SelectTemplate: l.Template,
			Mode:           mode,
		}
	case len(t.Checks) > 0:
		for i, c := range t.Checks {
			check, err := compileCheck(c)
			if err != nil {
				return domain.TaskNode{}, fmt.Errorf("check %d: %w", i, err)
			}
			node.Checks = append(node.Checks, check)
		}
	}

	return node, node.Validate()
}

func compileRetry(t TaskSpec, d TaskDefaults) (domain.RetryPolicy, error) {
	var p domain.RetryPolicy
	switch {
	case t.Retries != nil:
		p.MaxRetries = *t.Retries
	case d.Retries != nil:
		p.MaxRetries = *d.Retries
	}
	p.Backoff = domain.BackoffKind(firstNonEmpty(t.Backoff, d.Backoff))

	var err error
	if p.Delay, err = parseDuration(firstNonEmpty(t.RetryDelay, d.RetryDelay)); err != nil {
		return p, fmt.Errorf("retry_delay: %w", err)
	}
	if p.MaxDelay, err = parseDuration(d.MaxRetryDelay); err != nil {
		return p, fmt.Errorf("max_retry_delay: %w", err)
	}
	return p, p.Validate()
}

func compileCheck(c CheckSpec) (domain.QualityCheck, error) {
	var (
		check domain.QualityCheck
		err   error
	)
	switch c.Type {
	case CheckTypeTableNotEmpty:
		check, err = quality.TableNotEmpty(c.Table)
	case CheckTypeColumnNotNull:
		check, err = quality.ColumnNotNull(c.Table, c.Column)
	case CheckTypeRowCountAtLeast:
		if c.Min == nil {
			return check, domain.ErrValidation("row_count_at_least requires min")
		}
		check, err = quality.RowCountAtLeast(c.Table, *c.Min)
	case CheckTypeExpression:
		return quality.Expression(c.Name, c.Query, c.Expr)
	default:
		return check, domain.ErrValidation("unknown check type %q", c.Type)
	}
	if err != nil {
		return check, err
	}
	if c.Name != "" {
		check.Name = c.Name
	}
	return check, nil
}

// CompileCredentials resolves the environment references of every
// credential. lookup defaults to os.LookupEnv.
func CompileCredentials(specs []StorageCredentialSpec, lookup func(string) (string, bool)) ([]domain.StorageCredential, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := func(cred, field, name string) (string, error) {
		if name == "" {
			return "", nil
		}
		v, ok := lookup(name)
		if !ok || v == "" {
			return "", domain.ErrValidation("credential %s: %s: environment variable %s is not set", cred, field, name)
		}
		return v, nil
	}

	out := make([]domain.StorageCredential, 0, len(specs))
	for _, s := range specs {
		c := domain.StorageCredential{Name: s.Name, CredentialType: domain.CredentialType(s.CredentialType)}
		var err error
		switch {
		case s.S3 != nil:
			c.Endpoint, c.Region, c.URLStyle = s.S3.Endpoint, s.S3.Region, s.S3.URLStyle
			if c.KeyID, err = env(s.Name, "key_id_from_env", s.S3.KeyIDFromEnv); err != nil {
				return nil, err
			}
			if c.Secret, err = env(s.Name, "secret_from_env", s.S3.SecretFromEnv); err != nil {
				return nil, err
			}
			if c.SessionToken, err = env(s.Name, "session_token_from_env", s.S3.SessionTokenFromEnv); err != nil {
				return nil, err
			}
		case s.Azure != nil:
			if c.AzureAccountName, err = env(s.Name, "account_name_from_env", s.Azure.AccountNameFromEnv); err != nil {
				return nil, err
			}
			if c.AzureAccountKey, err = env(s.Name, "account_key_from_env", s.Azure.AccountKeyFromEnv); err != nil {
				return nil, err
			}
		case s.GCS != nil:
			c.GCSKeyFilePath = s.GCS.KeyFilePath
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
