// Package retrieval looks up employee records mentioned in a query and
// builds the context block injected ahead of the user's message. It is a
// deliberately simple keyword retriever: full names, first names,
// departments, and salary-ranking phrasings.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"piiguard/internal/core"
)

// Retrieval types reported alongside the built context.
const (
	TypeNone       = "none"
	TypeRanking    = "ranking"
	TypeDepartment = "department"
	TypeNamed      = "named"
)

// defaultRankingSize is used when a ranking query names no count.
const defaultRankingSize = 3

// Employee is a single directory record. Salary stays a display string
// ("$145,000"); parseSalary derives the comparable value when ranking.
type Employee struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Title      string `json:"title"`
	Department string `json:"department"`
	Salary     string `json:"salary"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	DOB        string `json:"dob,omitempty"`
	Address    string `json:"address,omitempty"`
}

type directoryFile struct {
	Company   string     `json:"company"`
	Employees []Employee `json:"employees"`
}

// Directory is an in-memory employee directory with lookup indexes.
// It implements core.Retriever.
type Directory struct {
	company   string
	employees []Employee

	byName      map[string]*Employee   // full name, lowercased
	byFirstName map[string][]*Employee // first word of name, lowercased
	byDept      map[string][]*Employee // department, lowercased

	firstNameRes map[string]*regexp.Regexp
}

var rankingTerms = []string{"top", "highest", "most", "best paid"}

var departmentScopeTerms = []string{"all", "everyone", "employees in", "compare", "salaries"}

var digitsRe = regexp.MustCompile(`\d+`)

// NewDirectory builds a directory from raw employees JSON.
func NewDirectory(data []byte) (*Directory, error) {
	var file directoryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse employee data: %w", err)
	}
	if file.Company == "" {
		file.Company = "Company"
	}

	d := &Directory{
		company:      file.Company,
		employees:    file.Employees,
		byName:       make(map[string]*Employee),
		byFirstName:  make(map[string][]*Employee),
		byDept:       make(map[string][]*Employee),
		firstNameRes: make(map[string]*regexp.Regexp),
	}

	for i := range d.employees {
		emp := &d.employees[i]
		nameLower := strings.ToLower(emp.Name)
		d.byName[nameLower] = emp

		if parts := strings.Fields(nameLower); len(parts) > 0 {
			first := parts[0]
			d.byFirstName[first] = append(d.byFirstName[first], emp)
			if _, ok := d.firstNameRes[first]; !ok {
				d.firstNameRes[first] = regexp.MustCompile(`\b` + regexp.QuoteMeta(first) + `\b`)
			}
		}

		if dept := strings.ToLower(emp.Department); dept != "" {
			d.byDept[dept] = append(d.byDept[dept], emp)
		}
	}

	return d, nil
}

// NewDirectoryFromFile loads a directory from a JSON file on disk,
// falling back to the embedded dataset when path is empty.
func NewDirectoryFromFile(path string) (*Directory, error) {
	if path == "" {
		return NewDirectory(embeddedEmployees)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read employee data: %w", err)
	}
	return NewDirectory(data)
}

// Company returns the directory's company name.
func (d *Directory) Company() string { return d.company }

// Employees returns all records in file order.
func (d *Directory) Employees() []Employee { return d.employees }

// EmployeeByID returns the record with the given ID.
func (d *Directory) EmployeeByID(id string) (*Employee, bool) {
	for i := range d.employees {
		if d.employees[i].ID == id {
			return &d.employees[i], true
		}
	}
	return nil, false
}

// FindEmployeesInQuery returns every employee mentioned in the query,
// full-name matches first, then unambiguous first-name word matches.
func (d *Directory) FindEmployeesInQuery(query string) []*Employee {
	queryLower := strings.ToLower(query)
	var mentioned []*Employee
	seen := make(map[string]bool)

	// Full names are the most specific signal. Iterate records in file
	// order so the result is deterministic.
	for i := range d.employees {
		emp := &d.employees[i]
		if strings.Contains(queryLower, strings.ToLower(emp.Name)) && !seen[emp.ID] {
			mentioned = append(mentioned, emp)
			seen[emp.ID] = true
		}
	}

	// First names need word boundaries so "Raj" does not match "Rajasthan".
	for i := range d.employees {
		emp := &d.employees[i]
		if seen[emp.ID] {
			continue
		}
		first := strings.ToLower(strings.Fields(emp.Name)[0])
		if re := d.firstNameRes[first]; re != nil && re.MatchString(queryLower) {
			mentioned = append(mentioned, emp)
			seen[emp.ID] = true
		}
	}

	return mentioned
}

// FindByDepartment returns all employees in the named department.
func (d *Directory) FindByDepartment(department string) []*Employee {
	return d.byDept[strings.ToLower(department)]
}

// DetectDepartmentQuery returns the first department name appearing in
// the query, or "" when none does.
func (d *Directory) DetectDepartmentQuery(query string) string {
	queryLower := strings.ToLower(query)
	// Iterate employees in file order to keep detection deterministic
	// when a query names several departments.
	for i := range d.employees {
		dept := strings.ToLower(d.employees[i].Department)
		if dept != "" && strings.Contains(queryLower, dept) {
			return dept
		}
	}
	return ""
}

// SalaryRanking returns employees sorted by salary descending. A topN
// of 0 returns everyone.
func (d *Directory) SalaryRanking(topN int) []*Employee {
	ranked := make([]*Employee, 0, len(d.employees))
	for i := range d.employees {
		ranked = append(ranked, &d.employees[i])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return parseSalary(ranked[i].Salary) > parseSalary(ranked[j].Salary)
	})
	if topN > 0 && topN < len(ranked) {
		ranked = ranked[:topN]
	}
	return ranked
}

// parseSalary strips $ and thousands separators. Unparseable salaries
// rank last rather than erroring.
func parseSalary(s string) float64 {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(s)
	v, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
	if err != nil {
		return 0
	}
	return v
}

// BuildContext formats employee records into the block injected ahead
// of the user query. includeSensitive pulls in salary, contact, and
// address fields.
func (d *Directory) BuildContext(employees []*Employee, includeSensitive bool) string {
	if len(employees) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Employee Records from %s:", d.company)
	for _, emp := range employees {
		fmt.Fprintf(&b, "\n- %s: %s, %s", emp.Name, emp.Title, emp.Department)
		if !includeSensitive {
			continue
		}
		fmt.Fprintf(&b, "\n  Salary: %s", emp.Salary)
		fmt.Fprintf(&b, "\n  Email: %s", emp.Email)
		fmt.Fprintf(&b, "\n  Phone: %s", emp.Phone)
		if emp.DOB != "" {
			fmt.Fprintf(&b, "\n  DOB: %s", emp.DOB)
		}
		if emp.Address != "" {
			fmt.Fprintf(&b, "\n  Address: %s", emp.Address)
		}
	}
	return b.String()
}

// Retrieve analyzes the query and builds relevant context. Ranking
// phrasings win over department queries, which win over plain name
// mentions.
func (d *Directory) Retrieve(ctx context.Context, query string) (*core.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(query)

	if containsAny(queryLower, rankingTerms) {
		topN := defaultRankingSize
		if m := digitsRe.FindString(query); m != "" {
			if n, err := strconv.Atoi(m); err == nil {
				topN = n
			}
		}
		ranked := d.SalaryRanking(topN)
		return &core.RetrievalResult{
			Context:       d.BuildContext(ranked, true),
			EmployeeCount: len(ranked),
			RetrievalType: TypeRanking,
		}, nil
	}

	if dept := d.DetectDepartmentQuery(query); dept != "" && containsAny(queryLower, departmentScopeTerms) {
		members := d.FindByDepartment(dept)
		return &core.RetrievalResult{
			Context:       d.BuildContext(members, true),
			EmployeeCount: len(members),
			RetrievalType: TypeDepartment,
		}, nil
	}

	if mentioned := d.FindEmployeesInQuery(query); len(mentioned) > 0 {
		return &core.RetrievalResult{
			Context:       d.BuildContext(mentioned, true),
			EmployeeCount: len(mentioned),
			RetrievalType: TypeNamed,
		}, nil
	}

	return &core.RetrievalResult{RetrievalType: TypeNone}, nil
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
