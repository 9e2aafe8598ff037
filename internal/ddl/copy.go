package ddl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"duckflow/internal/domain"
)

// copyOptionKeyRe admits Redshift-style option keywords such as TIMEFORMAT or
// ACCEPTINVCHARS and DuckDB reader parameters such as timestampformat.
var copyOptionKeyRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*( [A-Za-z][A-Za-z0-9_]*)?$`)

// numericValueRe matches option values emitted without quotes, such as the
// count in MAXERROR 10.
var numericValueRe = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// copyOptionValue renders an option value: numbers verbatim, anything else
// as a quoted literal.
func copyOptionValue(v string) string {
	if numericValueRe.MatchString(v) {
		return v
	}
	return QuoteLiteral(v)
}

// CopySpec describes a bulk load of a resolved object-store location into a
// staging table.
type CopySpec struct {
	Table        string
	Location     string
	Format       domain.DataFormat
	Delimiter    string
	IgnoreHeader int
	JSONPaths    string
	Options      []domain.CopyOption
	Credential   *domain.StorageCredential
}

// BulkCopy returns the statements that load spec.Location into spec.Table
// for the given dialect. Statements run in order inside one transaction.
func BulkCopy(dialect domain.Dialect, spec CopySpec) ([]string, error) {
	if spec.Location == "" {
		return nil, domain.ErrValidation("copy: location is required")
	}
	for _, opt := range spec.Options {
		if !copyOptionKeyRe.MatchString(opt.Key) {
			return nil, domain.ErrValidation("copy: invalid option key %q", opt.Key)
		}
	}

	switch dialect {
	case domain.DialectRedshift:
		stmt, err := redshiftCopy(spec)
		if err != nil {
			return nil, err
		}
		return []string{stmt}, nil
	case domain.DialectDuckDB:
		return duckdbCopy(spec)
	case domain.DialectPostgres:
		return nil, domain.ErrValidation("copy: loading from object storage is not supported by the postgres dialect")
	default:
		return nil, domain.ErrValidation("copy: unsupported dialect %q", dialect)
	}
}

// redshiftCopy renders a Redshift COPY. CSV emits both DELIMITER and
// IGNOREHEADER; JSON emits the path spec.
func redshiftCopy(spec CopySpec) (string, error) {
	qt, err := QualifiedName(spec.Table)
	if err != nil {
		return "", domain.ErrValidation("copy: %v", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "COPY %s\nFROM %s\n", qt, QuoteLiteral(spec.Location))

	if c := spec.Credential; c != nil && c.KeyID != "" {
		fmt.Fprintf(&b, "ACCESS_KEY_ID %s\nSECRET_ACCESS_KEY %s\n", QuoteLiteral(c.KeyID), QuoteLiteral(c.Secret))
		if c.SessionToken != "" {
			fmt.Fprintf(&b, "SESSION_TOKEN %s\n", QuoteLiteral(c.SessionToken))
		}
	} else {
		b.WriteString("IAM_ROLE default\n")
	}
	if c := spec.Credential; c != nil && c.Region != "" {
		fmt.Fprintf(&b, "REGION %s\n", QuoteLiteral(c.Region))
	}

	switch spec.Format {
	case domain.DataFormatCSV:
		delim := spec.Delimiter
		if delim == "" {
			delim = ","
		}
		fmt.Fprintf(&b, "FORMAT AS CSV\nDELIMITER %s\n", QuoteLiteral(delim))
		if spec.IgnoreHeader > 0 {
			fmt.Fprintf(&b, "IGNOREHEADER %d\n", spec.IgnoreHeader)
		}
	case domain.DataFormatJSON:
		paths := spec.JSONPaths
		if paths == "" {
			paths = domain.JSONPathsAuto
		}
		fmt.Fprintf(&b, "FORMAT AS JSON %s\n", QuoteLiteral(paths))
	default:
		return "", domain.ErrValidation("copy: unsupported format %q", spec.Format)
	}

	for _, opt := range spec.Options {
		if opt.Value == "" {
			fmt.Fprintf(&b, "%s\n", strings.ToUpper(opt.Key))
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", strings.ToUpper(opt.Key), copyOptionValue(opt.Value))
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

// duckdbCopy renders an INSERT ... SELECT over DuckDB's file readers,
// preceded by a temporary secret when credentials are supplied.
func duckdbCopy(spec CopySpec) ([]string, error) {
	qt, err := QualifiedName(spec.Table)
	if err != nil {
		return nil, domain.ErrValidation("copy: %v", err)
	}

	var stmts []string
	if spec.Credential != nil {
		secret, err := duckdbSecret(spec.Table, spec.Location, spec.Credential)
		if err != nil {
			return nil, err
		}
		if secret != "" {
			stmts = append(stmts, secret)
		}
	}

	var args []string
	var insert string
	switch spec.Format {
	case domain.DataFormatCSV:
		delim := spec.Delimiter
		if delim == "" {
			delim = ","
		}
		args = append(args,
			QuoteLiteral(expandLocation(spec.Location, "csv")),
			"delim="+QuoteLiteral(delim),
			"header=false",
		)
		if spec.IgnoreHeader > 0 {
			args = append(args, "skip="+strconv.Itoa(spec.IgnoreHeader))
		}
		insert = fmt.Sprintf("INSERT INTO %s SELECT * FROM read_csv(%%s)", qt)
	case domain.DataFormatJSON:
		if spec.JSONPaths != "" && spec.JSONPaths != domain.JSONPathsAuto {
			return nil, domain.ErrValidation("copy: jsonpaths files are not supported by the duckdb dialect")
		}
		args = append(args, QuoteLiteral(expandLocation(spec.Location, "json")))
		insert = fmt.Sprintf("INSERT INTO %s BY NAME SELECT * FROM read_json_auto(%%s)", qt)
	default:
		return nil, domain.ErrValidation("copy: unsupported format %q", spec.Format)
	}

	for _, opt := range spec.Options {
		key := strings.ToLower(strings.ReplaceAll(opt.Key, " ", "_"))
		args = append(args, key+"="+copyOptionValue(opt.Value))
	}

	stmts = append(stmts, fmt.Sprintf(insert, strings.Join(args, ", ")))
	return stmts, nil
}

// expandLocation turns a prefix into a recursive glob over files of ext.
// Locations that already name files or globs are returned unchanged.
func expandLocation(location, ext string) string {
	if strings.HasSuffix(location, "/") {
		return location + "**/*." + ext
	}
	return location
}

// duckdbSecret returns a CREATE OR REPLACE TEMPORARY SECRET scoped to the
// location, or "" when the credential carries nothing DuckDB can use.
func duckdbSecret(table, location string, c *domain.StorageCredential) (string, error) {
	name := "duckflow_" + strings.ReplaceAll(table, ".", "_")
	if err := ValidateIdentifier(name); err != nil {
		return "", domain.ErrValidation("copy: invalid secret name: %v", err)
	}

	var params []string
	switch c.CredentialType {
	case domain.CredentialTypeS3, "":
		if c.KeyID == "" {
			return "", nil
		}
		params = append(params, "TYPE S3", "KEY_ID "+QuoteLiteral(c.KeyID), "SECRET "+QuoteLiteral(c.Secret))
		if c.SessionToken != "" {
			params = append(params, "SESSION_TOKEN "+QuoteLiteral(c.SessionToken))
		}
		if c.Region != "" {
			params = append(params, "REGION "+QuoteLiteral(c.Region))
		}
		if c.Endpoint != "" {
			params = append(params, "ENDPOINT "+QuoteLiteral(c.Endpoint))
		}
		if c.URLStyle != "" {
			params = append(params, "URL_STYLE "+QuoteLiteral(c.URLStyle))
		}
	case domain.CredentialTypeAzure:
		conn := fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
			c.AzureAccountName, c.AzureAccountKey)
		params = append(params, "TYPE AZURE", "CONNECTION_STRING "+QuoteLiteral(conn))
	case domain.CredentialTypeGCS:
		params = append(params, "TYPE GCS", "KEY_FILE_PATH "+QuoteLiteral(c.GCSKeyFilePath))
	default:
		return "", domain.ErrValidation("copy: unsupported credential type %q", c.CredentialType)
	}
	params = append(params, "SCOPE "+QuoteLiteral(location))

	return fmt.Sprintf("CREATE OR REPLACE TEMPORARY SECRET %s (\n\t%s\n)",
		QuoteIdentifier(name), strings.Join(params, ",\n\t")), nil
}

// Redact replaces every secret carried by cred with *** in stmt. Used before
// statements are attached to errors or logs.
func Redact(stmt string, cred *domain.StorageCredential) string {
	if cred == nil {
		return stmt
	}
	for _, s := range []string{cred.Secret, cred.SessionToken, cred.AzureAccountKey, cred.KeyID} {
		if s == "" {
			continue
		}
		if escaped := strings.ReplaceAll(s, "'", "''"); escaped != s {
			stmt = strings.ReplaceAll(stmt, escaped, "***")
		}
		stmt = strings.ReplaceAll(stmt, s, "***")
	}
	return stmt
}
