package workflow

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gigflow/backend/internal/apperr"
	"github.com/gigflow/backend/internal/events"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/store"
	"gorm.io/gorm"
)

func TestAcceptProposal(t *testing.T) {
	f := setup(t)
	client := f.actor(models.RoleClient)
	freelancer := f.actor(models.RoleFreelancer)
	project := f.project(client)

	proposal := f.proposal(freelancer, project.ID, 300)
	if proposal.Status != models.ProposalPending {
		t.Fatalf("Status = %q, expected PENDING", proposal.Status)
	}
	f.events.Events()

	res, err := f.engine.AcceptProposal(f.ctx, client, proposal.ID)
	if err != nil {
		t.Fatalf("AcceptProposal: %v", err)
	}
	if res.Proposal.Status != models.ProposalAccepted {
		t.Errorf("proposal status = %q, expected ACCEPTED", res.Proposal.Status)
	}
	if res.Project.Status != models.ProjectInProgress {
		t.Errorf("project status = %q, expected IN_PROGRESS", res.Project.Status)
	}
	if res.Contract.ProposalID != proposal.ID || res.Contract.Status != models.ContractPending {
		t.Errorf("contract = %+v, expected PENDING contract for proposal %d", res.Contract, proposal.ID)
	}

	stored, err := f.engine.GetProject(f.ctx, client, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if stored.Status != models.ProjectInProgress {
		t.Errorf("stored project status = %q, expected IN_PROGRESS", stored.Status)
	}
	if n := f.count(&models.Contract{}, store.Where("proposal_id = ?", proposal.ID)); n != 1 {
		t.Errorf("contracts = %d, expected 1", n)
	}

	got := eventTypes(f.events.Events())
	want := []events.Type{events.ProposalAccepted, events.ProjectStatusChanged, events.ContractCreated}
	if len(got) != len(want) {
		t.Fatalf("events = %v, expected %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %q, expected %q", i, got[i], want[i])
		}
	}

	var logs []models.AuditLog
	if err := f.store.Find(f.ctx, &logs, store.Where("entity_type = ?", "contract")); err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(logs) != 1 || logs[0].ActorRole != models.RoleSystem {
		t.Errorf("contract audit = %+v, expected one SYSTEM entry", logs)
	}
}

func TestSubmitProposal_Duplicate(t *testing.T) {
	f := setup(t)
	client := f.actor(models.RoleClient)
	freelancer := f.actor(models.RoleFreelancer)
	project := f.project(client)
	f.proposal(freelancer, project.ID, 300)

	_, err := f.engine.SubmitProposal(f.ctx, freelancer, project.ID, SubmitProposalInput{BidAmount: 250})
	expectKind(t, err, apperr.KindValidation)
	expectField(t, err, "project_id")

	if n := f.count(&models.Proposal{}, store.Where("project_id = ?", project.ID)); n != 1 {
		t.Errorf("proposals = %d, expected 1", n)
	}
}

func TestSubmitProposal_InvalidBid(t *testing.T) {
	f := setup(t)
	client := f.actor(models.RoleClient)
	freelancer := f.actor(models.RoleFreelancer)
	project := f.project(client)

	for _, bid := range []float64{-5, 0} {
		_, err := f.engine.SubmitProposal(f.ctx, freelancer, project.ID, SubmitProposalInput{BidAmount: bid})
		expectKind(t, err, apperr.KindValidation)
		expectField(t, err, "bid_amount")
	}
	if n := f.count(&models.Proposal{}, store.Where("1 = 1")); n != 0 {
		t.Errorf("proposals = %d, expected none", n)
	}
}

func TestSubmitProposal_Authorization(t *testing.T) {
	f := setup(t)
	client := f.actor(models.RoleClient)
	project := f.project(client)

	_, err := f.engine.SubmitProposal(f.ctx, client, project.ID, SubmitProposalInput{BidAmount: 100})
	expectKind(t, err, apperr.KindForbidden)

	_, err = f.engine.SubmitProposal(f.ctx, f.actor(models.RoleFreelancer), 999, SubmitProposalInput{BidAmount: 100})
	expectKind(t, err, apperr.KindNotFound)

	if _, err := f.engine.ChangeProjectStatus(f.ctx, client, project.ID, models.ProjectClosed); err != nil {
		t.Fatalf("ChangeProjectStatus: %v", err)
	}
	_, err = f.engine.SubmitProposal(f.ctx, f.actor(models.RoleFreelancer), project.ID, SubmitProposalInput{BidAmount: 100})
	expectKind(t, err, apperr.KindForbidden)
}

func TestAcceptProposal_NonOwnerForbidden(t *testing.T) {
	f := setup(t)
	owner := f.actor(models.RoleClient)
	freelancer := f.actor(models.RoleFreelancer)
	project := f.project(owner)
	proposal := f.proposal(freelancer, project.ID, 300)
	before := f.auditCount()

	for _, actor := range []models.Role{models.RoleClient, models.RoleFreelancer} {
		_, err := f.engine.AcceptProposal(f.ctx, f.actor(actor), proposal.ID)
		expectKind(t, err, apperr.KindForbidden)
	}
	_, err := f.engine.AcceptProposal(f.ctx, freelancer, proposal.ID)
	expectKind(t, err, apperr.KindForbidden)

	got, _ := f.engine.GetProposal(f.ctx, owner, proposal.ID)
	if got.Status != models.ProposalPending {
		t.Errorf("Status = %q, expected PENDING", got.Status)
	}
	if f.count(&models.Contract{}, store.Where("1 = 1")) != 0 {
		t.Error("forbidden accept should not create a contract")
	}
	if f.auditCount() != before {
		t.Error("forbidden accept should not write audit rows")
	}
}

func TestAcceptProposal_RejectsSiblings(t *testing.T) {
	f := setup(t)
	client := f.actor(models.RoleClient)
	project := f.project(client)
	winner := f.proposal(f.actor(models.RoleFreelancer), project.ID, 300)
	s1 := f.proposal(f.actor(models.RoleFreelancer), project.ID, 350)
	s2 := f.proposal(f.actor(models.RoleFreelancer), project.ID, 400)

	res, err := f.engine.AcceptProposal(f.ctx, client, winner.ID)
	if err != nil {
		t.Fatalf("AcceptProposal: %v", err)
	}
	if len(res.RejectedSiblings) != 2 || res.RejectedSiblings[0] != s1.ID || res.RejectedSiblings[1] != s2.ID {
		t.Errorf("RejectedSiblings = %v, expected [%d %d]", res.RejectedSiblings, s1.ID, s2.ID)
	}
	for _, id := range []uint{s1.ID, s2.ID} {
		p, _ := f.engine.GetProposal(f.ctx, client, id)
		if p.Status != models.ProposalRejected {
			t.Errorf("sibling %d status = %q, expected REJECTED", id, p.Status)
		}
	}
}

func TestAcceptProposal_SingleAward(t *testing.T) {
	f := setup(t, WithRejectSiblings(false))
	client := f.actor(models.RoleClient)
	project := f.project(client)
	first := f.proposal(f.actor(models.RoleFreelancer), project.ID, 300)
	second := f.proposal(f.actor(models.RoleFreelancer), project.ID, 350)

	res, err := f.engine.AcceptProposal(f.ctx, client, first.ID)
	if err != nil {
		t.Fatalf("AcceptProposal: %v", err)
	}
	if len(res.RejectedSiblings) != 0 {
		t.Errorf("RejectedSiblings = %v, expected none", res.RejectedSiblings)
	}

	p, _ := f.engine.GetProposal(f.ctx, client, second.ID)
	if p.Status != models.ProposalPending {
		t.Fatalf("sibling status = %q, expected PENDING", p.Status)
	}

	_, err = f.engine.AcceptProposal(f.ctx, client, second.ID)
	expectKind(t, err, apperr.KindConflict)

	p, _ = f.engine.GetProposal(f.ctx, client, second.ID)
	if p.Status != models.ProposalPending {
		t.Errorf("sibling status = %q after refused accept, expected PENDING", p.Status)
	}
	if n := f.count(&models.Contract{}, store.Where("1 = 1")); n != 1 {
		t.Errorf("contracts = %d, expected 1", n)
	}
}

func TestAcceptProposal_TerminalStatus(t *testing.T) {
	f := setup(t)
	client := f.actor(models.RoleClient)
	project := f.project(client)
	proposal := f.proposal(f.actor(models.RoleFreelancer), project.ID, 300)

	if _, err := f.engine.AcceptProposal(f.ctx, client, proposal.ID); err != nil {
		t.Fatalf("AcceptProposal: %v", err)
	}

	_, err := f.engine.AcceptProposal(f.ctx, client, proposal.ID)
	expectKind(t, err, apperr.KindValidation)
	expectField(t, err, "status")

	_, err = f.engine.RejectProposal(f.ctx, client, proposal.ID)
	expectKind(t, err, apperr.KindValidation)

	for _, st := range []models.ProposalStatus{models.ProposalPending, models.ProposalRejected} {
		_, err = f.engine.ChangeProposalStatus(f.ctx, client, proposal.ID, st)
		expectKind(t, err, apperr.KindValidation)
		expectField(t, err, "status")
	}
}

func TestAcceptProposal_AtomicOnContractFailure(t *testing.T) {
	f := setup(t)
	client := f.actor(models.RoleClient)
	project := f.project(client)
	proposal := f.proposal(f.actor(models.RoleFreelancer), project.ID, 300)
	f.events.Events()
	before := f.auditCount()

	err := f.store.DB().Callback().Create().Before("gorm:create").Register("test:fail_contracts", func(tx *gorm.DB) {
		if tx.Statement.Table == "contracts" {
			tx.AddError(errors.New("injected contract failure"))
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	_, err = f.engine.AcceptProposal(f.ctx, client, proposal.ID)
	expectKind(t, err, apperr.KindConflict)

	p, _ := f.engine.GetProposal(f.ctx, client, proposal.ID)
	if p.Status != models.ProposalPending {
		t.Errorf("proposal status = %q, expected PENDING after rollback", p.Status)
	}
	pr, _ := f.engine.GetProject(f.ctx, client, project.ID)
	if pr.Status != models.ProjectOpen {
		t.Errorf("project status = %q, expected OPEN after rollback", pr.Status)
	}
	if f.count(&models.Contract{}, store.Where("1 = 1")) != 0 {
		t.Error("no contract should exist after rollback")
	}
	if f.auditCount() != before {
		t.Error("audit rows should roll back with the transaction")
	}
	if evts := f.events.Events(); len(evts) != 0 {
		t.Errorf("events = %v, expected none after rollback", eventTypes(evts))
	}
}

func TestAcceptProposal_ContractDescription(t *testing.T) {
	f := setup(t)
	client := f.actor(models.RoleClient)
	project := f.project(client)
	custom := f.proposal(f.actor(models.RoleFreelancer), project.ID, 300)

	res, err := f.engine.AcceptProposalWith(f.ctx, client, custom.ID, AcceptInput{ContractDescription: " Logo and brand kit "})
	if err != nil {
		t.Fatalf("AcceptProposalWith: %v", err)
	}
	if res.Contract.Description != "Logo and brand kit" {
		t.Errorf("Description = %q, expected the trimmed input", res.Contract.Description)
	}

	other := f.project(client)
	blank := f.proposal(f.actor(models.RoleFreelancer), other.ID, 300)
	res, err = f.engine.AcceptProposalWith(f.ctx, client, blank.ID, AcceptInput{ContractDescription: "   "})
	if err != nil {
		t.Fatalf("AcceptProposalWith: %v", err)
	}
	if want := fmt.Sprintf("Contract for %q", other.Title); res.Contract.Description != want {
		t.Errorf("Description = %q, expected %q", res.Contract.Description, want)
	}
}

func TestAcceptProposal_ConcurrentAccepts(t *testing.T) {
	f := setup(t, WithRejectSiblings(false))
	client := f.actor(models.RoleClient)
	project := f.project(client)
	a := f.proposal(f.actor(models.RoleFreelancer), project.ID, 300)
	b := f.proposal(f.actor(models.RoleFreelancer), project.ID, 320)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []uint{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, id uint) {
			defer wg.Done()
			_, errs[i] = f.engine.AcceptProposal(f.ctx, client, id)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		expectKind(t, err, apperr.KindConflict)
	}
	if succeeded != 1 {
		t.Fatalf("succeeded = %d, expected exactly 1 (errs: %v)", succeeded, errs)
	}
	if n := f.count(&models.Proposal{}, store.Where("status = ?", models.ProposalAccepted)); n != 1 {
		t.Errorf("accepted proposals = %d, expected 1", n)
	}
	if n := f.count(&models.Contract{}, store.Where("1 = 1")); n != 1 {
		t.Errorf("contracts = %d, expected 1", n)
	}
}

func TestRejectProposal_NoSideEffects(t *testing.T) {
	f := setup(t)
	client := f.actor(models.RoleClient)
	project := f.project(client)
	proposal := f.proposal(f.actor(models.RoleFreelancer), project.ID, 300)
	f.events.Events()

	got, err := f.engine.RejectProposal(f.ctx, client, proposal.ID)
	if err != nil {
		t.Fatalf("RejectProposal: %v", err)
	}
	if got.Status != models.ProposalRejected {
		t.Errorf("Status = %q, expected REJECTED", got.Status)
	}
	pr, _ := f.engine.GetProject(f.ctx, client, project.ID)
	if pr.Status != models.ProjectOpen {
		t.Errorf("project status = %q, expected OPEN", pr.Status)
	}
	if f.count(&models.Contract{}, store.Where("1 = 1")) != 0 {
		t.Error("reject should not create a contract")
	}
	evts := f.events.Events()
	if len(evts) != 1 || evts[0].Type != events.ProposalRejected {
		t.Errorf("events = %v, expected one proposal.rejected", eventTypes(evts))
	}
}

func TestChangeProposalStatus_Dispatch(t *testing.T) {
	f := setup(t)
	client := f.actor(models.RoleClient)
	project := f.project(client)
	p1 := f.proposal(f.actor(models.RoleFreelancer), project.ID, 300)

	got, err := f.engine.ChangeProposalStatus(f.ctx, client, p1.ID, models.ProposalPending)
	if err != nil {
		t.Fatalf("PENDING -> PENDING: %v", err)
	}
	if got.Status != models.ProposalPending {
		t.Errorf("Status = %q, expected PENDING", got.Status)
	}

	_, err = f.engine.ChangeProposalStatus(f.ctx, client, p1.ID, "WITHDRAWN")
	expectKind(t, err, apperr.KindValidation)

	got, err = f.engine.ChangeProposalStatus(f.ctx, client, p1.ID, "accepted")
	if err != nil {
		t.Fatalf("accept via dispatch: %v", err)
	}
	if got.Status != models.ProposalAccepted {
		t.Errorf("Status = %q, expected ACCEPTED", got.Status)
	}
}

func TestListProposals(t *testing.T) {
	f := setup(t)
	c1 := f.actor(models.RoleClient)
	c2 := f.actor(models.RoleClient)
	fr := f.actor(models.RoleFreelancer)
	p1 := f.project(c1)
	p2 := f.project(c2)
	f.proposal(fr, p1.ID, 100)
	f.proposal(fr, p2.ID, 200)
	f.proposal(f.actor(models.RoleFreelancer), p1.ID, 300)

	tests := []struct {
		name   string
		filter ProposalFilter
		want   int64
	}{
		{"by project", ProposalFilter{ProjectID: p1.ID}, 2},
		{"by freelancer", ProposalFilter{FreelancerID: fr.ID}, 2},
		{"by client", ProposalFilter{ClientID: c2.ID}, 1},
		{"by status", ProposalFilter{Status: "PENDING"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.engine.ListProposals(f.ctx, fr, tt.filter)
			if err != nil {
				t.Fatalf("ListProposals: %v", err)
			}
			if page.Total != tt.want {
				t.Errorf("Total = %d, expected %d", page.Total, tt.want)
			}
		})
	}
}
