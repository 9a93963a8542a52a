package main

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Audits the service layer for repository write calls and how each one
// reaches the database: through a transaction-scoped dbctx.Context handed
// out by the tx runner, or through an inline dbctx.New(ctx) that commits
// on its own. Direct writes are not wrong per se (single-row deletes and
// field updates don't need a transaction), but every one of them should be
// a deliberate choice, so this report keeps the inventory reviewable.
//
// Usage: go run scripts/audit_write_boundaries.go [repo-root]

type repoField struct {
	Name     string `json:"name"`
	RepoType string `json:"repo_type"`
}

type writeCall struct {
	Field  string `json:"field"`
	Method string `json:"method"`
	File   string `json:"file"`
	Line   int    `json:"line"`
	Direct bool   `json:"direct"`
}

type methodStats struct {
	StructName        string      `json:"struct_name"`
	Method            string      `json:"method"`
	File              string      `json:"file"`
	Line              int         `json:"line"`
	WriteCalls        int         `json:"write_calls"`
	DirectWriteCalls  int         `json:"direct_write_calls"`
	RepoFieldsWritten []string    `json:"repo_fields_written"`
	Writes            []writeCall `json:"writes,omitempty"`
}

type auditReport struct {
	WriteCallsites           int           `json:"write_callsites"`
	DirectWriteCallsites     int           `json:"direct_write_callsites"`
	MethodsWritingToRepos    int           `json:"methods_writing_to_repos"`
	MethodsCoordinating2Plus int           `json:"methods_coordinating_2plus_repos"`
	DirectWriteMethods       []methodStats `json:"direct_write_methods"`
	Methods                  []methodStats `json:"methods"`
	RepoFieldInventory       []repoField   `json:"repo_field_inventory"`
	StructsHoldingRepoFields []string      `json:"structs_holding_repo_fields"`
}

var repoWriteMethods = map[string]bool{
	"Create":           true,
	"Upsert":           true,
	"UpdateFields":     true,
	"SetCurrent":       true,
	"Delete":           true,
	"DeleteByBranchID": true,
	"LockByID":         true,
}

func main() {
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}

	servicesDir := filepath.Join(root, "internal", "services")
	fset := token.NewFileSet()

	pkgs, err := parser.ParseDir(fset, servicesDir, func(fi os.FileInfo) bool {
		name := fi.Name()
		return strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go")
	}, 0)
	if err != nil {
		exitf("parse dir: %v", err)
	}

	pkg, ok := pkgs["services"]
	if !ok {
		exitf("services package not found in %s", servicesDir)
	}

	fieldsByStruct := map[string]map[string]repoField{}
	for _, f := range pkg.Files {
		collectRepoFields(f, fieldsByStruct)
	}

	var methods []methodStats
	for filePath, f := range pkg.Files {
		rel, err := filepath.Rel(root, filePath)
		if err != nil {
			rel = filePath
		}
		collectMethodStats(fset, f, rel, fieldsByStruct, &methods)
	}

	report := buildReport(fieldsByStruct, methods)
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		exitf("marshal report: %v", err)
	}
	fmt.Println(string(out))
}

func collectRepoFields(file *ast.File, out map[string]map[string]repoField) {
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok || st.Fields == nil {
				continue
			}
			fields := map[string]repoField{}
			for _, field := range st.Fields.List {
				if len(field.Names) == 0 {
					continue
				}
				sel, ok := field.Type.(*ast.SelectorExpr)
				if !ok {
					continue
				}
				pkgIdent, ok := sel.X.(*ast.Ident)
				if !ok || pkgIdent.Name != "repos" {
					continue
				}
				repoType := sel.Sel.Name
				if !strings.HasSuffix(repoType, "Repo") {
					continue
				}
				name := field.Names[0].Name
				fields[name] = repoField{Name: name, RepoType: repoType}
			}
			if len(fields) > 0 {
				out[ts.Name.Name] = fields
			}
		}
	}
}

func collectMethodStats(
	fset *token.FileSet,
	file *ast.File,
	relFile string,
	fieldsByStruct map[string]map[string]repoField,
	out *[]methodStats,
) {
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv == nil || fd.Body == nil || len(fd.Recv.List) == 0 {
			continue
		}

		recvName, recvType := recvInfo(fd.Recv.List[0])
		if recvType == "" || recvName == "" {
			continue
		}
		fields, ok := fieldsByStruct[recvType]
		if !ok {
			continue
		}

		var writes []writeCall
		written := map[string]bool{}

		ast.Inspect(fd.Body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			fnSel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			rcvSel, ok := fnSel.X.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			baseIdent, ok := rcvSel.X.(*ast.Ident)
			if !ok || baseIdent.Name != recvName {
				return true
			}

			field := rcvSel.Sel.Name
			method := fnSel.Sel.Name
			if _, ok := fields[field]; !ok || !repoWriteMethods[method] {
				return true
			}

			writes = append(writes, writeCall{
				Field:  field,
				Method: method,
				File:   filepath.ToSlash(relFile),
				Line:   fset.Position(call.Pos()).Line,
				Direct: isInlineContext(call),
			})
			written[field] = true
			return true
		})

		direct := 0
		for _, w := range writes {
			if w.Direct {
				direct++
			}
		}

		*out = append(*out, methodStats{
			StructName:        recvType,
			Method:            fd.Name.Name,
			File:              filepath.ToSlash(relFile),
			Line:              fset.Position(fd.Pos()).Line,
			WriteCalls:        len(writes),
			DirectWriteCalls:  direct,
			RepoFieldsWritten: sortedKeys(written),
			Writes:            writes,
		})
	}
}

// isInlineContext reports whether the repo call builds its database context
// inline with dbctx.New(...) instead of threading through a dbctx.Context
// value bound earlier, which is how transaction-scoped handles arrive.
func isInlineContext(call *ast.CallExpr) bool {
	if len(call.Args) == 0 {
		return false
	}
	inner, ok := call.Args[0].(*ast.CallExpr)
	if !ok {
		return false
	}
	sel, ok := inner.Fun.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	pkgIdent, ok := sel.X.(*ast.Ident)
	return ok && pkgIdent.Name == "dbctx" && sel.Sel.Name == "New"
}

func buildReport(fieldsByStruct map[string]map[string]repoField, methods []methodStats) auditReport {
	sort.Slice(methods, func(i, j int) bool {
		if methods[i].File == methods[j].File {
			return methods[i].Line < methods[j].Line
		}
		return methods[i].File < methods[j].File
	})

	var report auditReport
	for _, m := range methods {
		if m.WriteCalls == 0 {
			continue
		}
		report.Methods = append(report.Methods, m)
		report.WriteCallsites += m.WriteCalls
		report.DirectWriteCallsites += m.DirectWriteCalls
		report.MethodsWritingToRepos++
		if len(m.RepoFieldsWritten) >= 2 {
			report.MethodsCoordinating2Plus++
		}
		if m.DirectWriteCalls > 0 {
			report.DirectWriteMethods = append(report.DirectWriteMethods, m)
		}
	}

	structs := map[string]bool{}
	fieldKeys := map[string]repoField{}
	for structName, fields := range fieldsByStruct {
		structs[structName] = true
		for _, rf := range fields {
			fieldKeys[structName+"."+rf.Name] = rf
		}
	}
	report.StructsHoldingRepoFields = sortedKeys(structs)

	keys := make([]string, 0, len(fieldKeys))
	for k := range fieldKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		report.RepoFieldInventory = append(report.RepoFieldInventory, fieldKeys[k])
	}
	return report
}

func recvInfo(field *ast.Field) (string, string) {
	if field == nil || len(field.Names) == 0 {
		return "", ""
	}
	recvName := field.Names[0].Name
	switch t := field.Type.(type) {
	case *ast.StarExpr:
		if id, ok := t.X.(*ast.Ident); ok {
			return recvName, id.Name
		}
	case *ast.Ident:
		return recvName, t.Name
	}
	return "", ""
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
