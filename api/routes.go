package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// ElectionsEndpoint is the endpoint listing known elections
	ElectionsEndpoint = "/elections"
	// ElectionEndpoint is the endpoint to get the election info
	ElectionURLParam = "electionId"
	ElectionEndpoint = "/elections/{" + ElectionURLParam + "}"
	// RegisterEndpoint is the endpoint for completing a voter registration
	RegisterEndpoint = "/elections/{" + ElectionURLParam + "}/register"
	// ProofEndpoint is the endpoint for requesting a membership witness
	ProofEndpoint = "/elections/{" + ElectionURLParam + "}/proof"
	// FinalizeEndpoint and CompleteEndpoint drive the admin lifecycle
	// transitions
	FinalizeEndpoint = "/elections/{" + ElectionURLParam + "}/finalize"
	CompleteEndpoint = "/elections/{" + ElectionURLParam + "}/complete"
	// IncidentsEndpoint exposes unresolved operator incidents
	IncidentsEndpoint = "/incidents"
	// TestSetElectionEndpoint is the endpoint for creating an election with
	// its invitations for testing. In a real scenario, elections are set up
	// by the admin-facing deployment layer.
	TestSetElectionEndpoint = "/elections/test"
)
