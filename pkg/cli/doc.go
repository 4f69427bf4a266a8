// Package cli provides the quartermaster command-line interface.
//
// # Overview
//
// Every command loads its configuration from QM_ environment variables (see
// pkg/config), opens the database and runs one operation against it. Results
// are printed as JSON.
//
// # Commands
//
// migrate and seed prepare a database:
//
//	quartermaster migrate
//	quartermaster seed
//
// create-user, create-project: set up users and projects. The creator of a
// project becomes its PROJECT_ADMIN member.
//
//	quartermaster create-user --login alice --email alice@example.com
//	quartermaster create-project --as alice --name "Road Trip"
//
// add-members: add bill contributors on behalf of a member holding the
// add_member capability. add-member skips the check and is meant for
// operators.
//
//	quartermaster add-members --as alice --project 1 --user-ids <id>,<id>
//	quartermaster add-member --user-id <id> --project 1 --role PROJECT_ADMIN
//
// can: explain a capability decision
//
//	quartermaster can --login bob --project 1 --capability close_bill
//
// create-bill, add-position, close-bill: bill lifecycle
//
//	quartermaster create-bill --project 1 --title Groceries
//	quartermaster add-position --bill 1 --title Bread --cost 4.5
//	quartermaster close-bill --bill 1 --as bob
//
// ops: serve /health, /health/live, /health/ready and /metrics until
// SIGINT or SIGTERM, reloading the policy file when it changes. Capability
// checks against the policy in effect are served too:
//
//	QM_POLICY_FILE=policy.yaml quartermaster ops
//	curl 'localhost:9090/authz/projects/1/can/close_bill?login=bob'
//	curl localhost:9090/authz/policy
package cli
