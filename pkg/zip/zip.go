// Package zip bundles job artifacts into a single downloadable archive.
package zip

import (
	"archive/zip"
	"bytes"
)

type Artifact struct {
	Filename string
	MIME     string
	Data     []byte
}

func ArchiveArtifacts(artifacts []Artifact) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, artifact := range artifacts {
		w, err := zw.Create(artifact.Filename)
		if err != nil {
			continue
		}
		if _, err := w.Write(artifact.Data); err != nil {
			return nil
		}
	}
	_ = zw.Close()
	return buf.Bytes()
}
