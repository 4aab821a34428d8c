package sqlinline

// QListStaleJobs returns non-terminal jobs whose last sign of life predates
// the cutoff. startedAt governs once a worker picked the job up; createdAt
// covers jobs that never started.
const QListStaleJobs = `--sql 7cf39504-23fb-46e8-a7f2-0526adca570b
select id, kind, user_id
from jobs
where status in ('pending', 'processing')
  and coalesce(started_at, created_at) < $1::timestamptz
order by created_at asc;
`

const QMarkJobStuck = `--sql 7f24196d-c355-41a0-ac6e-b24ac1ffd4e6
update jobs
set status = 'failed', error_details = $2::text, completed_at = now(), updated_at = now()
where id = $1::uuid and status in ('pending', 'processing')
returning id;
`

// QUnfinishedItemsForRequeue copies the payload of items that never
// succeeded, so a follow-up job does not regenerate artifacts already paid
// for.
const QUnfinishedItemsForRequeue = `--sql aa7dfb23-c561-4936-a2d3-019c659a4e2f
select position, scene_id, character_id, prompt
from job_items
where job_id = $1::uuid and status <> 'succeeded'
order by position asc;
`
