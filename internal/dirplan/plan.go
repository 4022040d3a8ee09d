// Package dirplan reconciles the planned project tree against the files that
// actually exist. The plan is the only persisted artifact; the actual view and
// all discrepancy annotations are recomputed from the filesystem on every read.
package dirplan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AlanyTan/sweteam/pkg/models"
)

// Discrepancy values attached to merged nodes.
const (
	DiscrepancyPlannedOnly = "planned but not created"
	DiscrepancyUnplanned   = "exists but not in plan"
)

// Plan manages the planned directory structure persisted at planFile and
// reconciled against projectDir. Updates mutate only the plan document; files
// are created solely through the file tools.
type Plan struct {
	planFile   string
	projectDir string
	mu         sync.Mutex
}

// New returns a Plan for projectDir with its plan stored at planFile.
func New(planFile, projectDir string) *Plan {
	return &Plan{planFile: planFile, projectDir: projectDir}
}

// Read returns the merged tree. With actualOnly set the plan is ignored and
// only what exists on disk is returned, without discrepancy annotations.
func (p *Plan) Read(actualOnly bool) (*models.DirectoryNode, error) {
	actual, err := p.walkActual()
	if err != nil {
		return nil, err
	}
	if actualOnly {
		return actual, nil
	}
	p.mu.Lock()
	planned, err := p.load()
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return merge(planned, actual), nil
}

// Update merges the proposed subtree into the plan, additively: nodes are
// added and descriptions refreshed, existing planned nodes are never removed.
// Nothing is created on disk.
func (p *Plan) Update(proposed *models.DirectoryNode) error {
	if proposed == nil {
		return fmt.Errorf("%w: empty directory plan", models.ErrValidation)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	current, err := p.load()
	if err != nil {
		return err
	}
	if current == nil {
		current = &models.DirectoryNode{Name: ".", IsDir: true, Planned: true}
	}
	mergePlan(current, proposed)
	return p.save(current)
}

// UpdateFromMap accepts the loosely-typed plan object reasoning services send
// (nested maps of name -> description or name -> children) and merges it.
func (p *Plan) UpdateFromMap(obj map[string]any) error {
	node := fromMap(".", obj)
	return p.Update(node)
}

// load reads the plan document. A missing file yields (nil, nil).
func (p *Plan) load() (*models.DirectoryNode, error) {
	data, err := os.ReadFile(p.planFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var root models.DirectoryNode
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", p.planFile, err)
	}
	markPlanned(&root)
	return &root, nil
}

func (p *Plan) save(root *models.DirectoryNode) error {
	clean := persistable(root)
	data, err := yaml.Marshal(clean)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.planFile), 0o755); err != nil {
		return fmt.Errorf("create plan dir: %w", err)
	}
	return os.WriteFile(p.planFile, data, 0o644)
}

// walkActual builds the on-disk tree rooted at projectDir. A missing project
// directory yields an empty root rather than an error.
func (p *Plan) walkActual() (*models.DirectoryNode, error) {
	root := &models.DirectoryNode{Name: ".", IsDir: true, Actual: true}
	nodes := map[string]*models.DirectoryNode{".": root}
	err := filepath.WalkDir(p.projectDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == p.projectDir {
				return filepath.SkipAll
			}
			return err
		}
		rel, err := filepath.Rel(p.projectDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		// The plan document itself is not part of the project tree.
		if abs, _ := filepath.Abs(path); abs != "" {
			if planAbs, _ := filepath.Abs(p.planFile); abs == planAbs {
				return nil
			}
		}
		node := &models.DirectoryNode{Name: filepath.Base(rel), IsDir: d.IsDir(), Actual: true}
		nodes[rel] = node
		parent := filepath.ToSlash(filepath.Dir(rel))
		pn, ok := nodes[parent]
		if !ok {
			pn = root
		}
		pn.Children = append(pn.Children, node)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk project dir: %w", err)
	}
	sortTree(root)
	return root, nil
}

// merge overlays planned onto actual, annotating per-node discrepancies.
func merge(planned, actual *models.DirectoryNode) *models.DirectoryNode {
	if planned == nil {
		out := cloneShallow(actual)
		out.Discrepancy = ""
		for _, c := range actual.Children {
			child := merge(nil, c)
			child.Discrepancy = DiscrepancyUnplanned
			annotateUnplanned(child)
			out.Children = append(out.Children, child)
		}
		return out
	}
	if actual == nil {
		out := cloneShallow(planned)
		out.Discrepancy = DiscrepancyPlannedOnly
		for _, c := range planned.Children {
			child := merge(c, nil)
			out.Children = append(out.Children, child)
		}
		return out
	}

	out := cloneShallow(actual)
	out.Planned = true
	out.Description = planned.Description
	byName := make(map[string]*models.DirectoryNode, len(actual.Children))
	for _, c := range actual.Children {
		byName[c.Name] = c
	}
	seen := make(map[string]bool)
	for _, pc := range planned.Children {
		seen[pc.Name] = true
		out.Children = append(out.Children, merge(pc, byName[pc.Name]))
	}
	for _, ac := range actual.Children {
		if seen[ac.Name] {
			continue
		}
		child := merge(nil, ac)
		child.Discrepancy = DiscrepancyUnplanned
		out.Children = append(out.Children, child)
	}
	sortTree(out)
	return out
}

func annotateUnplanned(n *models.DirectoryNode) {
	for _, c := range n.Children {
		c.Discrepancy = DiscrepancyUnplanned
		annotateUnplanned(c)
	}
}

// mergePlan folds proposed into current, in place.
func mergePlan(current, proposed *models.DirectoryNode) {
	if proposed.Description != "" {
		current.Description = proposed.Description
	}
	byName := make(map[string]*models.DirectoryNode, len(current.Children))
	for _, c := range current.Children {
		byName[c.Name] = c
	}
	for _, pc := range proposed.Children {
		if existing, ok := byName[pc.Name]; ok {
			mergePlan(existing, pc)
			continue
		}
		add := persistable(pc)
		markPlanned(add)
		current.Children = append(current.Children, add)
	}
	sortTree(current)
}

// fromMap converts the free-form plan object into a node tree. Map values are
// either child maps (directories) or strings (file descriptions).
func fromMap(name string, obj map[string]any) *models.DirectoryNode {
	node := &models.DirectoryNode{Name: name, IsDir: true, Planned: true}
	for k, v := range obj {
		switch val := v.(type) {
		case map[string]any:
			node.Children = append(node.Children, fromMap(k, val))
		case string:
			node.Children = append(node.Children, &models.DirectoryNode{
				Name: k, Description: val, Planned: true,
				IsDir: strings.HasSuffix(k, "/"),
			})
		default:
			node.Children = append(node.Children, &models.DirectoryNode{Name: k, Planned: true})
		}
	}
	sortTree(node)
	return node
}

// persistable deep-copies a node keeping only the planned shape: no actual
// flags, no discrepancies.
func persistable(n *models.DirectoryNode) *models.DirectoryNode {
	out := &models.DirectoryNode{
		Name:        n.Name,
		IsDir:       n.IsDir,
		Description: n.Description,
		Planned:     true,
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, persistable(c))
	}
	return out
}

func markPlanned(n *models.DirectoryNode) {
	n.Planned = true
	n.Actual = false
	n.Discrepancy = ""
	for _, c := range n.Children {
		markPlanned(c)
	}
}

func cloneShallow(n *models.DirectoryNode) *models.DirectoryNode {
	return &models.DirectoryNode{
		Name:        n.Name,
		IsDir:       n.IsDir,
		Description: n.Description,
		Planned:     n.Planned,
		Actual:      n.Actual,
	}
}

func sortTree(n *models.DirectoryNode) {
	sort.Slice(n.Children, func(i, j int) bool { return n.Children[i].Name < n.Children[j].Name })
}
