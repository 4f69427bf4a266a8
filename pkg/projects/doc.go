// Package projects manages projects and their members.
//
// A project is created together with its first member, the creator, who is
// granted PROJECT_ADMIN through the rbac ledger in the same transaction:
//
//	svc := projects.NewService(db, checker, rbac.Deps{})
//	project, err := svc.CreateProject(ctx, creatorID, "My Project")
//
// Membership is unique per (project, user) at the storage layer; adding a
// user twice returns ErrMemberExists. AddMembers is gated by the add_member
// capability of the acting login and adds new members as BILL_CONTRIBUTOR.
package projects
