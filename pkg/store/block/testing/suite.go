package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittovault/pkg/store/block"
)

// StoreTestSuite exercises the block.Store contract. It is reused by every
// backend (filesystem, memory, S3) so that they stay interchangeable.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &blocktesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) block.Store {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore returns a fresh, empty store for each test.
	NewStore func(t *testing.T) block.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Vaults", suite.RunVaultTests)
	t.Run("Blocks", suite.RunBlockTests)
	t.Run("Bulk", suite.RunBulkTests)
	t.Run("Listing", suite.RunListingTests)
}

func testContext() context.Context {
	return context.Background()
}
