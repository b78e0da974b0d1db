package state

import "testing"

func TestAllServicesActive(t *testing.T) {
	services := []Service{
		{ID: 1, BackendStatus: BackendStatusStarted},
		{ID: 2, BackendStatus: BackendStatusStarted},
	}
	if !AllServicesActive(services) {
		t.Fatal("expected all services active")
	}

	services[1].BackendStatus = BackendStatusStart
	if AllServicesActive(services) {
		t.Fatal("expected not all services active once one is merely starting")
	}
}

func TestEssentialServicesRunning(t *testing.T) {
	services := []Service{
		{ID: 1, IsEssential: true, BackendStatus: BackendStatusStarted},
		{ID: 2, IsEssential: false, BackendStatus: BackendStatusStart},
	}
	if !EssentialServicesRunning(services) {
		t.Fatal("expected essential services running even though an elastic one isn't")
	}

	services[0].BackendStatus = BackendStatusDie
	if EssentialServicesRunning(services) {
		t.Fatal("expected essential services not running once the essential one died")
	}
}
