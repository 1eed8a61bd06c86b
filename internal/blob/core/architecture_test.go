package core

import (
	"testing"

	"alienrisk/testutil"
)

func TestContractDoesNotImportDrivers(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden, "the blob contract must not depend on its drivers")
}
