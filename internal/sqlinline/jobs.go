package sqlinline

const QEnqueueJob = `--sql 95fc9fc4-ead8-4f5f-b067-418ce1e864e6
with incoming as (
    select
        $1::uuid  as owner_id,
        $2::text  as cycle_key,
        $3::jsonb as input_snapshot,
        $4::int   as max_retries
)
insert into plan_jobs (id, owner_id, cycle_key, status, input_snapshot, retry_count, max_retries, checkpoint_phase, created_at)
select gen_random_uuid(), owner_id, cycle_key, 'pending', input_snapshot, 0, max_retries, 0, now()
from incoming
where not exists (
    select 1
    from plan_jobs
    where owner_id = (select owner_id from incoming)
      and cycle_key = (select cycle_key from incoming)
      and status in ('pending', 'processing')
)
returning id;
`

const QClaimJob = `--sql a639b597-ca27-4c63-8069-5ae596fb6c3d
with next_job as (
    select id
    from plan_jobs
    where status = 'pending'
       or (status = 'processing' and lock_expires_at <= now())
    order by created_at asc
    for update skip locked
    limit 1
),
claimed as (
    update plan_jobs
    set status = 'processing',
        worker_id = $1::text,
        lock_expires_at = now() + make_interval(secs => $2::double precision),
        started_at = now()
    where id in (select id from next_job)
    returning id, owner_id, cycle_key, status, input_snapshot, retry_count, max_retries,
              checkpoint_phase, checkpoint_data, worker_id, lock_expires_at,
              created_at, started_at
)
select * from claimed;
`

const QHeartbeatJob = `--sql b143d3c1-ed33-4234-91a0-1276893cba46
update plan_jobs
set checkpoint_phase = $3::int,
    checkpoint_data = $4::jsonb,
    lock_expires_at = now() + make_interval(secs => $5::double precision)
where id = $1::uuid
  and worker_id = $2::text
  and status = 'processing';
`

const QCompleteJob = `--sql bb079f07-5c62-4bd1-b105-abc756eaeac9
update plan_jobs
set status = 'completed',
    result_reference = $3::text,
    completed_at = now(),
    worker_id = null,
    lock_expires_at = null
where id = $1::uuid
  and worker_id = $2::text
  and status = 'processing';
`

const QFailJob = `--sql 637edca1-3290-4559-9e1d-600cfdc2b5a1
update plan_jobs
set status          = case when $5::boolean and retry_count < max_retries then 'pending' else 'failed' end,
    retry_count     = case when $5::boolean and retry_count < max_retries then retry_count + 1 else retry_count end,
    error_code      = case when $5::boolean and retry_count < max_retries then $3::text
                           when $5::boolean then 'max_retries_exceeded'
                           else $3::text
                      end,
    error_message   = $4::text,
    completed_at    = case when $5::boolean and retry_count < max_retries then null else now() end,
    started_at      = case when $5::boolean and retry_count < max_retries then null else started_at end,
    worker_id       = null,
    lock_expires_at = null
where id = $1::uuid
  and worker_id = $2::text
  and status = 'processing';
`

const QCancelJob = `--sql 5769d73d-ecbd-448c-9a14-99cdd2fa646d
update plan_jobs
set status = 'failed',
    error_code = 'user_cancelled',
    error_message = 'cancelled by owner',
    completed_at = now(),
    worker_id = null,
    lock_expires_at = null
where id = $1::uuid
  and owner_id = $2::uuid
  and status in ('pending', 'processing');
`

const QResetJobIfStuck = `--sql f325f236-6622-443b-9545-b994d71f547c
update plan_jobs
set status          = case when retry_count < max_retries then 'pending' else 'failed' end,
    retry_count     = case when retry_count < max_retries then retry_count + 1 else retry_count end,
    error_code      = case when retry_count < max_retries then 'client_reset' else 'max_retries_exceeded' end,
    error_message   = 'reset by owner',
    completed_at    = case when retry_count < max_retries then null else now() end,
    started_at      = case when retry_count < max_retries then null else started_at end,
    worker_id       = null,
    lock_expires_at = null
where id = $1::uuid
  and owner_id = $2::uuid
  and status = 'processing'
  and started_at <= now() - make_interval(secs => $3::double precision);
`

const QGetActiveJob = `--sql c739a874-5911-45d0-a3b8-067bc7a171b4
select id, status, cycle_key, retry_count, max_retries,
       coalesce(error_code, ''), coalesce(error_message, ''),
       lock_expires_at, created_at, started_at
from plan_jobs
where owner_id = $1::uuid
  and status in ('pending', 'processing')
order by created_at desc
limit 1;
`

const QGetJob = `--sql 3db65f77-f9fd-4e10-93a0-7720771d8015
select id, owner_id, cycle_key, status, input_snapshot,
       coalesce(result_reference, ''), coalesce(error_code, ''), coalesce(error_message, ''),
       retry_count, max_retries, checkpoint_phase, checkpoint_data,
       coalesce(worker_id, ''), lock_expires_at, created_at, started_at, completed_at
from plan_jobs
where id = $1::uuid
  and owner_id = $2::uuid;
`

const QSweepJobs = `--sql 9c9f75c0-dabb-4601-bd7a-82381624ac01
delete from plan_jobs
where status in ('completed', 'failed')
  and completed_at <= now() - make_interval(secs => $1::double precision);
`
