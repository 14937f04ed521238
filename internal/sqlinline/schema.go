package sqlinline

// Schema statements are idempotent and applied one at a time at startup; pgx
// uses the extended protocol, which rejects multi-statement strings.

const QEnsureJobsTable = `--sql e61ab98d-2445-4dbf-9f41-3c6885bf7359
create table if not exists plan_jobs (
    id uuid primary key,
    owner_id uuid not null,
    cycle_key text not null,
    status text not null default 'pending',
    input_snapshot jsonb not null default '{}'::jsonb,
    result_reference text,
    error_code text,
    error_message text,
    retry_count int not null default 0,
    max_retries int not null default 3,
    checkpoint_phase int not null default 0,
    checkpoint_data jsonb,
    worker_id text,
    lock_expires_at timestamptz,
    created_at timestamptz not null default now(),
    started_at timestamptz,
    completed_at timestamptz
);
`

const QEnsureActiveJobIndex = `--sql 29b308c0-6dbe-4f98-847d-1f0be47eaef0
create unique index if not exists plan_jobs_active_owner_cycle
on plan_jobs (owner_id, cycle_key)
where status in ('pending', 'processing');
`

const QEnsureClaimIndex = `--sql 27a7e24b-ca83-4c56-9135-9ae4cfdaebe0
create index if not exists plan_jobs_claim_order
on plan_jobs (created_at)
where status in ('pending', 'processing');
`

const QEnsureIntegrationTokensTable = `--sql 748e8544-e473-40f8-b892-4d938d0a744f
create table if not exists integration_tokens (
    id uuid primary key,
    provider text not null unique,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`

// SchemaStatements lists every DDL statement in apply order.
var SchemaStatements = []string{
	QEnsureJobsTable,
	QEnsureActiveJobIndex,
	QEnsureClaimIndex,
	QEnsureIntegrationTokensTable,
}
