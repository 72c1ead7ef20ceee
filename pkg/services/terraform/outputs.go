package terraform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-exec/tfexec"
	"github.com/samber/lo"

	"github.com/de-tools/dino/pkg/models/domain"
)

const (
	OutputWorkspaceURL = "databricks_workspace_url"
	OutputWorkspaceID  = "databricks_workspace_id"
	OutputStorageRoot  = "unity_catalog_storage_root"
	OutputAccessToken  = "databricks_access_token"
	OutputKeyVaultURI  = "key_vault_uri"
)

var ErrMissingOutputs = errors.New("missing required terraform outputs")

// RequiredOutputs must all be present before the catalog setup can run.
var RequiredOutputs = []string{
	OutputWorkspaceURL,
	OutputWorkspaceID,
	OutputStorageRoot,
	OutputAccessToken,
}

func ParseOutputs(data []byte) (map[string]tfexec.OutputMeta, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty terraform output")
	}

	var outputs map[string]tfexec.OutputMeta
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal terraform outputs: %w", err)
	}
	return outputs, nil
}

// OutputValue returns the scalar value of a named output as a string.
func OutputValue(outputs map[string]tfexec.OutputMeta, name string) (string, bool) {
	meta, ok := outputs[name]
	if !ok || len(meta.Value) == 0 {
		return "", false
	}

	dec := json.NewDecoder(bytes.NewReader(meta.Value))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false
	}

	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case json.Number:
		return val.String(), true
	case bool:
		return fmt.Sprint(val), true
	default:
		return string(meta.Value), true
	}
}

// WorkspaceOutputsFrom extracts the outputs consumed by the catalog setup. The
// error wraps ErrMissingOutputs and names every absent output.
func WorkspaceOutputsFrom(outputs map[string]tfexec.OutputMeta) (domain.WorkspaceOutputs, error) {
	missing := lo.Filter(RequiredOutputs, func(name string, _ int) bool {
		_, ok := OutputValue(outputs, name)
		return !ok
	})
	if len(missing) > 0 {
		return domain.WorkspaceOutputs{}, fmt.Errorf("%w: %s", ErrMissingOutputs, strings.Join(missing, ", "))
	}

	value := func(name string) string {
		v, _ := OutputValue(outputs, name)
		return v
	}

	return domain.WorkspaceOutputs{
		WorkspaceURL: value(OutputWorkspaceURL),
		WorkspaceID:  value(OutputWorkspaceID),
		StorageRoot:  value(OutputStorageRoot),
		AccessToken:  value(OutputAccessToken),
		KeyVaultURI:  value(OutputKeyVaultURI),
	}, nil
}
