package model

import "testing"

func TestRoleAtLeast(t *testing.T) {
	tests := []struct {
		role     string
		minimum  string
		expected bool
	}{
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleCustodian, true},
		{RoleAdmin, RoleStaff, true},
		{RoleCustodian, RoleAdmin, false},
		{RoleCustodian, RoleCustodian, true},
		{RoleCustodian, RoleStaff, true},
		{RoleStaff, RoleAdmin, false},
		{RoleStaff, RoleCustodian, false},
		{RoleStaff, RoleStaff, true},
		// Unknown roles fail-closed.
		{"unknown", RoleStaff, false},
		{RoleAdmin, "unknown", false},
		{"", "", false},
		{"", RoleStaff, false},
	}

	for _, tt := range tests {
		got := RoleAtLeast(tt.role, tt.minimum)
		if got != tt.expected {
			t.Errorf("RoleAtLeast(%q, %q) = %v, want %v", tt.role, tt.minimum, got, tt.expected)
		}
	}
}

func TestCustodyTransitions(t *testing.T) {
	tests := []struct {
		from, to CustodyStatus
		ok       bool
	}{
		{CustodyInStorage, CustodyInUse, true},
		{CustodyInUse, CustodyInStorage, true},
		{CustodyInStorage, CustodyDamaged, true},
		{CustodyDamaged, CustodyInStorage, true},
		{CustodyLost, CustodyInStorage, true},
		{CustodyDamaged, CustodyInUse, false},
		{CustodyInUse, CustodyDisposed, true},
		{CustodyDisposed, CustodyInStorage, false},
		{CustodyInStorage, CustodyInStorage, false},
	}

	for _, tt := range tests {
		err := tt.from.CheckTransition(tt.to)
		if (err == nil) != tt.ok {
			t.Errorf("%s -> %s: err = %v, want ok=%v", tt.from, tt.to, err, tt.ok)
		}
	}
}

func TestClaimTransitions(t *testing.T) {
	tests := []struct {
		from, to ClaimStatus
		ok       bool
	}{
		{ClaimReserved, ClaimIssued, true},
		{ClaimIssued, ClaimReturned, true},
		{ClaimReserved, ClaimReturned, false},
		{ClaimReturned, ClaimReserved, false},
		{ClaimIssued, ClaimReserved, false},
	}

	for _, tt := range tests {
		err := tt.from.CheckTransition(tt.to)
		if (err == nil) != tt.ok {
			t.Errorf("%s -> %s: err = %v, want ok=%v", tt.from, tt.to, err, tt.ok)
		}
	}

	if !ClaimIssued.Active() || ClaimReturned.Active() {
		t.Error("issued claims must be active and returned claims must not")
	}
}
