/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package router

import (
	"context"
	"testing"

	"github.com/altairalabs/mcpagg/internal/store/postgres"
)

// fakeToolLookup is a minimal toolLookup double keyed by (name, scope).
type fakeToolLookup struct {
	global map[string]*postgres.Tool
	byOrg  map[string]map[string]*postgres.Tool
}

func (f *fakeToolLookup) GetByName(_ context.Context, name string, orgID *string) (*postgres.Tool, error) {
	if orgID == nil || *orgID == "" {
		if t, ok := f.global[name]; ok {
			return t, nil
		}
		return nil, postgres.ErrNotFound
	}
	if scoped, ok := f.byOrg[*orgID]; ok {
		if t, ok := scoped[name]; ok {
			return t, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func TestSplitNamespaced_DottedNameSplits(t *testing.T) {
	server, tool, external := splitNamespaced("acme.send_email")
	if !external || server != "acme" || tool != "send_email" {
		t.Errorf("got (%q, %q, %v), want (acme, send_email, true)", server, tool, external)
	}
}

func TestSplitNamespaced_UndottedNameIsInternal(t *testing.T) {
	server, tool, external := splitNamespaced("internal_tool")
	if external || server != "" || tool != "internal_tool" {
		t.Errorf("got (%q, %q, %v), want (\"\", internal_tool, false)", server, tool, external)
	}
}

func TestSplitNamespaced_OnlyFirstDotSplits(t *testing.T) {
	server, tool, external := splitNamespaced("acme.sub.tool")
	if !external || server != "acme" || tool != "sub.tool" {
		t.Errorf("got (%q, %q, %v), want (acme, sub.tool, true)", server, tool, external)
	}
}

func TestLookupTool_FindsOrgScopedHighSecurityTool(t *testing.T) {
	orgScoped := &postgres.Tool{Name: "bash_execute", SecurityLevel: postgres.SecurityHigh}
	r := &Router{toolRepo: &fakeToolLookup{
		global: map[string]*postgres.Tool{},
		byOrg:  map[string]map[string]*postgres.Tool{"acme": {"bash_execute": orgScoped}},
	}}

	tool, err := r.lookupTool(context.Background(), "acme", "bash_execute")
	if err != nil {
		t.Fatalf("lookupTool: %v", err)
	}
	if tool.SecurityLevel != postgres.SecurityHigh {
		t.Errorf("got security %q, want HIGH", tool.SecurityLevel)
	}
}

func TestLookupTool_FallsBackToGlobalScope(t *testing.T) {
	global := &postgres.Tool{Name: "weather", SecurityLevel: postgres.SecurityLow}
	r := &Router{toolRepo: &fakeToolLookup{
		global: map[string]*postgres.Tool{"weather": global},
		byOrg:  map[string]map[string]*postgres.Tool{},
	}}

	tool, err := r.lookupTool(context.Background(), "acme", "weather")
	if err != nil {
		t.Fatalf("lookupTool: %v", err)
	}
	if tool.Name != "weather" {
		t.Errorf("got %q, want weather", tool.Name)
	}
}

func TestLookupTool_NotFoundInEitherScope(t *testing.T) {
	r := &Router{toolRepo: &fakeToolLookup{
		global: map[string]*postgres.Tool{},
		byOrg:  map[string]map[string]*postgres.Tool{},
	}}

	if _, err := r.lookupTool(context.Background(), "acme", "missing"); err != postgres.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
