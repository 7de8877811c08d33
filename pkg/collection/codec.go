package collection

import (
	"encoding/json"
	"fmt"

	"github.com/soilnet/ismn/pkg/archive"
	"github.com/soilnet/ismn/pkg/filehandler"
	"github.com/soilnet/ismn/pkg/meta"
)

// storedVar is the checkpoint form of a MetaVar.
type storedVar struct {
	Name   string      `json:"name"`
	Kind   meta.Kind   `json:"kind"`
	Value  string      `json:"value,omitempty"`
	Depth  *meta.Depth `json:"depth,omitempty"`
	Source string      `json:"source,omitempty"`
}

type storedFile struct {
	Path     string      `json:"path"`
	FileType string      `json:"file_type"`
	Vars     []storedVar `json:"vars"`
}

type storedResult struct {
	Folder   string        `json:"folder"`
	Files    []storedFile  `json:"files"`
	Errors   []ErrorRecord `json:"errors,omitempty"`
	Warnings []ErrorRecord `json:"warnings,omitempty"`
}

// encodeResult serializes a station result for a checkpoint store.
func encodeResult(res StationResult) ([]byte, error) {
	out := storedResult{
		Folder:   res.Folder,
		Files:    make([]storedFile, 0, len(res.Entries)),
		Errors:   res.Errors,
		Warnings: res.Warnings,
	}
	for _, e := range res.Entries {
		vars := e.File.Metadata().Vars()
		sf := storedFile{
			Path:     e.File.Path(),
			FileType: string(e.File.FileType()),
			Vars:     make([]storedVar, len(vars)),
		}
		for i, v := range vars {
			sf.Vars[i] = storedVar{
				Name:   v.Name,
				Kind:   v.Value.Kind(),
				Value:  v.Value.String(),
				Depth:  v.Depth,
				Source: v.Source,
			}
		}
		out.Files = append(out.Files, sf)
	}
	return json.Marshal(out)
}

// decodeResult restores a station result. The files are bound to root.
func decodeResult(data []byte, root archive.Root, scratch string) (StationResult, error) {
	var in storedResult
	if err := json.Unmarshal(data, &in); err != nil {
		return StationResult{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	res := StationResult{Folder: in.Folder, Errors: in.Errors, Warnings: in.Warnings}
	for _, sf := range in.Files {
		vars := make([]meta.MetaVar, len(sf.Vars))
		for i, sv := range sf.Vars {
			v, err := meta.ParseKind(sv.Kind, sv.Value)
			if err != nil {
				return StationResult{}, fmt.Errorf("checkpoint of %s: %w", sf.Path, err)
			}
			vars[i] = meta.MetaVar{Name: sv.Name, Value: v, Depth: sv.Depth, Source: sv.Source}
		}
		md := meta.New(vars...)
		df := filehandler.FromMetadata(root, sf.Path, filehandler.ParseFileType(sf.FileType), md, scratch)
		res.Entries = append(res.Entries, Entry{Network: md.Network(), Station: md.Station(), File: df})
	}
	return res, nil
}
