package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/pithecene-io/buildout/types"
)

// FileName is the manifest file name inside a task output directory.
const FileName = "output.json"

// outputTypeRecord is the tagged artifact type. Kind selects the closed
// artifact type set; unknown kinds and names are rejected at decode time.
type outputTypeRecord struct {
	Kind string `json:"kind"`
	Type string `json:"type"`
}

type splitRecord struct {
	FilterType string `json:"filterType"`
	Value      string `json:"value"`
}

type apkDataRecord struct {
	Type        string        `json:"type"`
	Splits      []splitRecord `json:"splits"`
	VersionCode int           `json:"versionCode"`
	VersionName string        `json:"versionName,omitempty"`
	Enabled     bool          `json:"enabled"`
	FilterName  string        `json:"filterName,omitempty"`
	OutputFile  string        `json:"outputFile,omitempty"`
	FullName    string        `json:"fullName"`
	BaseName    string        `json:"baseName"`
}

type outputRecord struct {
	OutputType outputTypeRecord  `json:"outputType"`
	ApkData    apkDataRecord     `json:"apkData"`
	Path       string            `json:"path"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Encode serializes outputs with paths made relative to dir.
// Paths are written slash-separated.
func Encode(e BuildElements, dir string) ([]byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest directory: %w", err)
	}

	records := make([]outputRecord, 0, len(e.outputs))
	for _, o := range e.outputs {
		rel, err := relativePath(absDir, o.Path)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", o.Type.Name, err)
		}
		records = append(records, outputRecord{
			OutputType: outputTypeRecord{Kind: string(o.Type.Family), Type: o.Type.Name},
			ApkData:    encodeApkData(o.ApkData),
			Path:       rel,
			Properties: o.Properties,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a manifest and resolves its relative paths against dir.
func Decode(data []byte, dir string) (BuildElements, error) {
	var records []outputRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return BuildElements{}, fmt.Errorf("decode manifest: %w", err)
	}

	outputs := make([]BuildOutput, 0, len(records))
	for i, r := range records {
		t, err := types.LookupArtifactType(types.Family(r.OutputType.Kind), r.OutputType.Type)
		if err != nil {
			return BuildElements{}, fmt.Errorf("manifest entry %d: %w", i, err)
		}
		apk, err := decodeApkData(r.ApkData)
		if err != nil {
			return BuildElements{}, fmt.Errorf("manifest entry %d: %w", i, err)
		}
		if r.Path == "" {
			return BuildElements{}, fmt.Errorf("manifest entry %d: empty path", i)
		}
		path := filepath.FromSlash(r.Path)
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		outputs = append(outputs, BuildOutput{
			Type:       t,
			ApkData:    apk,
			Path:       path,
			Properties: r.Properties,
		})
	}
	return BuildElements{outputs: outputs}, nil
}

func relativePath(absDir, path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return "", fmt.Errorf("path %s is not relative to %s: %w", path, absDir, err)
	}
	return filepath.ToSlash(rel), nil
}

func encodeApkData(a types.ApkData) apkDataRecord {
	splits := make([]splitRecord, 0, len(a.Filters))
	for _, f := range a.Filters {
		splits = append(splits, splitRecord{FilterType: string(f.FilterType), Value: f.Identifier})
	}
	return apkDataRecord{
		Type:        string(a.Type),
		Splits:      splits,
		VersionCode: a.VersionCode,
		VersionName: a.VersionName,
		Enabled:     a.Enabled,
		FilterName:  a.FilterName,
		OutputFile:  a.OutputFileName,
		FullName:    a.FullName,
		BaseName:    a.BaseName,
	}
}

func decodeApkData(r apkDataRecord) (types.ApkData, error) {
	outputType, err := types.ParseOutputType(r.Type)
	if err != nil {
		return types.ApkData{}, err
	}
	var filters []types.FilterData
	for _, s := range r.Splits {
		ft, err := types.ParseFilterType(s.FilterType)
		if err != nil {
			return types.ApkData{}, err
		}
		filters = append(filters, types.FilterData{FilterType: ft, Identifier: s.Value})
	}
	return types.ApkData{
		Type:           outputType,
		Filters:        filters,
		VersionCode:    r.VersionCode,
		VersionName:    r.VersionName,
		Enabled:        r.Enabled,
		FilterName:     r.FilterName,
		OutputFileName: r.OutputFile,
		FullName:       r.FullName,
		BaseName:       r.BaseName,
	}, nil
}
