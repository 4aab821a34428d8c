package sqlinline

const QActivePrice = `--sql 9b0a778c-4bee-4de3-a4ac-b07b1515fcb6
select credits, mode, real_cost
from pricing
where kind = $1::text and provider = $2::text and active
limit 1;
`

// QChargeAccount debits the account and appends the ledger row in one
// statement. The debit CTE matches zero rows when the balance guard fails,
// which makes the insert a no-op; callers map "no rows returned" to an
// insufficient-credits error. $5 is the free-generation override.
const QChargeAccount = `--sql 2799400c-c889-4b14-8005-4711f88e2e20
with debit as (
    update credit_accounts
    set balance = balance - $2::bigint,
        total_spent = total_spent + $2::bigint,
        total_real_cost = total_real_cost + $3::bigint,
        updated_at = now()
    where user_id = $1::uuid and (balance >= $2::bigint or $5::boolean)
    returning user_id
)
insert into credit_transactions (id, user_id, amount, kind, provider, real_cost, project_id)
select $4::uuid, user_id, -$2::bigint, $6::text, $7::text, $3::bigint, nullif($8, '')::uuid
from debit
returning id, created_at;
`

// QRefundTransaction reverses a prior debit with a compensating row. The
// unique index on refund_of makes a second refund of the same transaction
// fail instead of crediting twice.
const QRefundTransaction = `--sql 759940e5-a332-4a79-a55f-b569cdf56b32
with original as (
    select id, user_id, amount, kind, provider, real_cost, project_id
    from credit_transactions
    where id = $2::uuid and amount < 0
),
credit as (
    update credit_accounts
    set balance = balance - original.amount,
        total_spent = total_spent + original.amount,
        total_real_cost = total_real_cost - original.real_cost,
        updated_at = now()
    from original
    where credit_accounts.user_id = original.user_id
    returning original.id
)
insert into credit_transactions (id, user_id, amount, kind, provider, real_cost, project_id, refund_of)
select $1::uuid, user_id, -amount, kind, provider, -real_cost, project_id, id
from original
where id in (select id from credit)
returning id, user_id, amount, kind, provider, real_cost, coalesce(project_id::text, ''), created_at;
`

const QGetAccount = `--sql bbc8c0d2-4456-4201-a708-215ff7654eab
select user_id, balance, total_spent, total_earned, total_real_cost, updated_at
from credit_accounts
where user_id = $1::uuid;
`

const QListTransactions = `--sql 0acef3bc-ff02-4a64-92f3-e3055ed5a336
select id, user_id, amount, kind, provider, real_cost, coalesce(project_id::text, ''),
       coalesce(refund_of::text, ''), created_at
from credit_transactions
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`

// QRebuildAccount recomputes the cached aggregate as a fold over the
// transaction log, the source of truth.
const QRebuildAccount = `--sql abdd3d21-d2f6-4209-8a5e-b0590007a317
update credit_accounts a
set balance = f.balance,
    total_spent = f.total_spent,
    total_earned = f.total_earned,
    total_real_cost = f.total_real_cost,
    updated_at = now()
from (
    select coalesce(sum(amount), 0) as balance,
           coalesce(sum(case when amount < 0 then -amount else 0 end), 0)
               - coalesce(sum(case when refund_of is not null then amount else 0 end), 0) as total_spent,
           coalesce(sum(case when amount > 0 and refund_of is null then amount else 0 end), 0) as total_earned,
           coalesce(sum(real_cost), 0) as total_real_cost
    from credit_transactions
    where user_id = $1::uuid
) f
where a.user_id = $1::uuid;
`

// QRetirePrice deactivates the active row for a pair when its terms
// changed. Old rows stay for audit.
const QRetirePrice = `--sql d05fb142-27d2-4087-a332-4c2790714a18
update pricing
set active = false
where kind = $1::text and provider = $2::text and active
  and (credits <> $3::bigint or mode <> $4::text or real_cost <> $5::bigint);
`

// QInsertPriceIfMissing adds a fresh active row unless an identical one is
// already active. Run after QRetirePrice.
const QInsertPriceIfMissing = `--sql d89ccefd-2424-4ae6-9693-e8fbc47ae522
insert into pricing (kind, provider, credits, mode, real_cost, active)
select $1::text, $2::text, $3::bigint, $4::text, $5::bigint, true
where not exists (
    select 1 from pricing where kind = $1::text and provider = $2::text and active
);
`
