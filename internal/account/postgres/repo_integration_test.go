// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/account/postgres"
)

func draft(email, token string) *account.Account {
	acct, err := account.NewAccount(email, "name", "$argon2id$placeholder", token)
	Expect(err).NotTo(HaveOccurred())
	return acct
}

var _ = Describe("AccountRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.AccountRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewAccountRepository(testPool)
		truncate(ctx)
	})

	It("round-trips an account through insert and lookups", func() {
		stored, err := repo.Insert(ctx, draft("Alice@Example.com", "tok-alice"))
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.CreatedAt).NotTo(BeZero())
		Expect(stored.Email).To(Equal("alice@example.com"))

		byEmail, err := repo.FindByEmail(ctx, "ALICE@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(stored.ID))

		byToken, err := repo.FindByToken(ctx, "tok-alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(byToken.ID).To(Equal(stored.ID))
		Expect(byToken.Active).To(BeFalse())

		byID, err := repo.FindByID(ctx, stored.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(byID.Username).To(Equal("name"))
	})

	It("rejects a second account with the same email in any case", func() {
		_, err := repo.Insert(ctx, draft("bob@example.com", "tok-1"))
		Expect(err).NotTo(HaveOccurred())

		_, err = repo.Insert(ctx, draft("BOB@example.com", "tok-2"))
		Expect(errors.Is(err, account.ErrDuplicateEmail)).To(BeTrue())
	})

	It("allows exactly one of many concurrent registrations for an email", func() {
		const workers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			dupes     int
		)
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				_, err := repo.Insert(ctx, draft("race@example.com", fmt.Sprintf("tok-%d", i)))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, account.ErrDuplicateEmail):
					dupes++
				default:
					Fail(err.Error())
				}
			}()
		}
		wg.Wait()
		Expect(succeeded).To(Equal(1))
		Expect(dupes).To(Equal(workers - 1))
	})

	It("activates an account and clears its token", func() {
		stored, err := repo.Insert(ctx, draft("carol@example.com", "tok-carol"))
		Expect(err).NotTo(HaveOccurred())

		stored.Activate()
		Expect(repo.Save(ctx, stored)).To(Succeed())

		_, err = repo.FindByToken(ctx, "tok-carol")
		Expect(errors.Is(err, account.ErrNotFound)).To(BeTrue())

		reloaded, err := repo.FindByID(ctx, stored.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(reloaded.Active).To(BeTrue())
		Expect(reloaded.VerificationToken).To(BeEmpty())
	})

	It("lets activated accounts share the empty token", func() {
		for _, email := range []string{"d1@example.com", "d2@example.com"} {
			stored, err := repo.Insert(ctx, draft(email, "tok-"+email))
			Expect(err).NotTo(HaveOccurred())
			stored.Activate()
			Expect(repo.Save(ctx, stored)).To(Succeed())
		}
	})

	It("lists accounts in creation order", func() {
		for _, email := range []string{"e1@example.com", "e2@example.com", "e3@example.com"} {
			_, err := repo.Insert(ctx, draft(email, "tok-"+email))
			Expect(err).NotTo(HaveOccurred())
		}

		page, err := repo.List(ctx, 2, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(page).To(HaveLen(2))
		Expect(page[0].Email).To(Equal("e2@example.com"))
		Expect(page[1].Email).To(Equal("e3@example.com"))
	})
})

var _ = Describe("ResetRepository", func() {
	var (
		ctx    context.Context
		resets *postgres.ResetRepository
		owner  *account.Account
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncate(ctx)
		resets = postgres.NewResetRepository(testPool)

		var err error
		owner, err = postgres.NewAccountRepository(testPool).Insert(ctx, draft("reset@example.com", "tok-reset"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("stores, finds and deletes reset requests", func() {
		reset, err := account.NewPasswordReset(owner.ID, "hash-1", time.Now().Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(resets.Create(ctx, reset)).To(Succeed())

		found, err := resets.GetByTokenHash(ctx, "hash-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(found.AccountID).To(Equal(owner.ID))

		Expect(resets.DeleteByAccount(ctx, owner.ID)).To(Succeed())
		_, err = resets.GetByTokenHash(ctx, "hash-1")
		Expect(errors.Is(err, account.ErrNotFound)).To(BeTrue())
	})

	It("hands a token to exactly one of many concurrent consumers", func() {
		reset, err := account.NewPasswordReset(owner.ID, "contested", time.Now().Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(resets.Create(ctx, reset)).To(Succeed())

		const workers = 8
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			consumed int
			missing  int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				_, err := resets.Consume(ctx, "contested")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					consumed++
				case errors.Is(err, account.ErrNotFound):
					missing++
				default:
					Fail(err.Error())
				}
			}()
		}
		wg.Wait()
		Expect(consumed).To(Equal(1))
		Expect(missing).To(Equal(workers - 1))
	})

	It("purges only expired requests", func() {
		live, err := account.NewPasswordReset(owner.ID, "live", time.Now().Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		stale := &account.PasswordReset{
			ID:        ulid.Make(),
			AccountID: owner.ID,
			TokenHash: "stale",
			ExpiresAt: time.Now().Add(-time.Minute),
			CreatedAt: time.Now().Add(-time.Hour),
		}
		Expect(resets.Create(ctx, live)).To(Succeed())
		Expect(resets.Create(ctx, stale)).To(Succeed())

		n, err := resets.DeleteExpired(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))

		_, err = resets.GetByTokenHash(ctx, "live")
		Expect(err).NotTo(HaveOccurred())
	})
})
