// Package scope resolves project, contract, SOW and process codes against the
// progress hierarchy and produces the labels shown for a scope selection.
//
// Resolution never fails. A code that cannot be found degrades to the deepest
// level that did resolve.
package scope

// Process is a leaf of the hierarchy.
type Process struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// SOW is a statement of work under a contract.
type SOW struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Processes []Process `json:"processes,omitempty"`
}

// Contract groups statements of work under a project.
type Contract struct {
	Code string `json:"code"`
	Name string `json:"name"`
	SOWs []SOW  `json:"sows,omitempty"`
}

// Project is the root of a hierarchy branch.
type Project struct {
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Contracts []Contract `json:"contracts,omitempty"`
}

// Hierarchy is the project -> contract -> SOW -> process tree.
type Hierarchy struct {
	Projects []Project `json:"projects"`
}

// Selection is a partial scope filter. An empty string means the level is not selected.
type Selection struct {
	ProjectID  string `json:"projectId,omitempty"`
	ContractID string `json:"contractId,omitempty"`
	SOWID      string `json:"sowId,omitempty"`
	ProcessID  string `json:"processId,omitempty"`
}

// IsZero reports whether no level is selected.
func (s Selection) IsZero() bool {
	return s == Selection{}
}

// Names holds the resolved display names for a selection. Levels that did not
// resolve are empty.
type Names struct {
	ProjectName  string `json:"projectName,omitempty"`
	ContractName string `json:"contractName,omitempty"`
	SOWName      string `json:"sowName,omitempty"`
	ProcessName  string `json:"processName,omitempty"`
}

// PortfolioLabel is shown when nothing in the selection resolves.
const PortfolioLabel = "Portfolio overview"

// Resolve maps every selected code to its name. A child is looked up only under
// its resolved parent; when the parent level is unselected the child is searched
// across the whole tree.
func Resolve(sel Selection, h Hierarchy) Names {
	var n Names

	projects := h.Projects
	if sel.ProjectID != "" {
		p := findProject(h.Projects, sel.ProjectID)
		if p == nil {
			return n
		}
		n.ProjectName = p.Name
		projects = []Project{*p}
	}

	var contracts []Contract
	for i := range projects {
		contracts = append(contracts, projects[i].Contracts...)
	}
	if sel.ContractID != "" {
		c := findContract(contracts, sel.ContractID)
		if c == nil {
			return n
		}
		n.ContractName = c.Name
		contracts = []Contract{*c}
	}

	var sows []SOW
	for i := range contracts {
		sows = append(sows, contracts[i].SOWs...)
	}
	if sel.SOWID != "" {
		s := findSOW(sows, sel.SOWID)
		if s == nil {
			return n
		}
		n.SOWName = s.Name
		sows = []SOW{*s}
	}

	if sel.ProcessID != "" {
		for i := range sows {
			if pr := findProcess(sows[i].Processes, sel.ProcessID); pr != nil {
				n.ProcessName = pr.Name
				break
			}
		}
	}
	return n
}

// Label returns a single display string for the deepest level that resolved.
func Label(sel Selection, h Hierarchy) (Names, string) {
	n := Resolve(sel, h)
	return n, n.Label()
}

// Label formats the deepest non-empty name.
func (n Names) Label() string {
	switch {
	case n.ProcessName != "":
		return "Process · " + n.ProcessName
	case n.SOWName != "":
		return "SOW · " + n.SOWName
	case n.ContractName != "":
		return "Contract · " + n.ContractName
	case n.ProjectName != "":
		return "Project · " + n.ProjectName
	default:
		return PortfolioLabel
	}
}

// Clamp drops selected levels that no longer exist in h. Clearing cascades: a
// missing project clears contract, SOW and process together.
func Clamp(sel Selection, h Hierarchy) Selection {
	if sel.ProjectID == "" {
		return sel
	}
	p := findProject(h.Projects, sel.ProjectID)
	if p == nil {
		return Selection{}
	}
	if sel.ContractID == "" {
		return sel
	}
	c := findContract(p.Contracts, sel.ContractID)
	if c == nil {
		return Selection{ProjectID: sel.ProjectID}
	}
	if sel.SOWID == "" {
		return sel
	}
	s := findSOW(c.SOWs, sel.SOWID)
	if s == nil {
		return Selection{ProjectID: sel.ProjectID, ContractID: sel.ContractID}
	}
	if sel.ProcessID != "" && findProcess(s.Processes, sel.ProcessID) == nil {
		sel.ProcessID = ""
	}
	return sel
}

func findProject(ps []Project, code string) *Project {
	for i := range ps {
		if ps[i].Code == code {
			return &ps[i]
		}
	}
	return nil
}

func findContract(cs []Contract, code string) *Contract {
	for i := range cs {
		if cs[i].Code == code {
			return &cs[i]
		}
	}
	return nil
}

func findSOW(ss []SOW, code string) *SOW {
	for i := range ss {
		if ss[i].Code == code {
			return &ss[i]
		}
	}
	return nil
}

func findProcess(ps []Process, code string) *Process {
	for i := range ps {
		if ps[i].Code == code {
			return &ps[i]
		}
	}
	return nil
}
