package directory

// Employee is a person record as seen by the provisioning engine. The
// employee tables are owned by the HR side of the product; this package
// only reads them.
type Employee struct {
	ID             string       `json:"id"`
	OrganizationID string       `json:"organizationId"`
	DepartmentID   *string      `json:"departmentId,omitempty"`
	BranchID       *string      `json:"branchId,omitempty"`
	Name           string       `json:"name"`
	Active         bool         `json:"active"`
	Credentials    []Credential `json:"credentials,omitempty"`
}

// Credential is an access credential held by an employee.
type Credential struct {
	ID         string         `json:"id"`
	EmployeeID string         `json:"employeeId"`
	Type       CredentialType `json:"type"`
	Value      string         `json:"value"`
	Active     bool           `json:"active"`
}

// CredentialType identifies the kind of access credential.
type CredentialType string

const (
	CredentialFace        CredentialType = "face"
	CredentialCard        CredentialType = "card"
	CredentialFingerprint CredentialType = "fingerprint"
	CredentialPIN         CredentialType = "pin"
)

// AllCredentialTypes returns every supported credential type.
func AllCredentialTypes() []CredentialType {
	return []CredentialType{CredentialFace, CredentialCard, CredentialFingerprint, CredentialPIN}
}

// Scope selects the employees a device should hold. Exactly one selector
// is honoured, checked in order: explicit IDs, department, branch,
// organization. CredentialType optionally narrows the set to employees
// holding an active credential of that type; when set, only credentials
// of that type are attached to the returned employees.
type Scope struct {
	EmployeeIDs    []string       `json:"employeeIds,omitempty"`
	DepartmentID   string         `json:"departmentId,omitempty"`
	BranchID       string         `json:"branchId,omitempty"`
	OrganizationID string         `json:"organizationId,omitempty"`
	CredentialType CredentialType `json:"credentialType,omitempty"`
}

// IsEmpty reports whether no selector is set.
func (s Scope) IsEmpty() bool {
	return len(s.EmployeeIDs) == 0 && s.DepartmentID == "" && s.BranchID == "" && s.OrganizationID == ""
}
