/*
 * Copyright 2024 ScopeDB, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package itcases

import (
	"testing"

	"github.com/lucasepe/codename"
	xtdb "github.com/pyxtdb/xtdb-sdk/go"
	"github.com/stretchr/testify/require"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func NewClient(t testing.TB) *xtdb.Client {
	config := xtdb.LoadConfig()

	if config == nil {
		t.Skip("XTDB_ENDPOINT not set")
		return nil // unreachable
	}

	return xtdb.NewClient(config)
}

// RandomName generates an entity id that no other test run uses.
func RandomName(t testing.TB) string {
	rng, err := codename.DefaultRNG()
	require.NoError(t, err)
	return codename.Generate(rng, 10)
}
