package memory

import (
	"testing"

	"github.com/marmos91/dittovault/pkg/store/metadata"
	metadatatesting "github.com/marmos91/dittovault/pkg/store/metadata/testing"
)

func TestMemoryIndex(t *testing.T) {
	suite := &metadatatesting.IndexTestSuite{
		NewIndex: func(t *testing.T) metadata.Index {
			return NewMemoryIndex()
		},
	}
	suite.Run(t)
}
