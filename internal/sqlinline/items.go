package sqlinline

const QInsertItem = `--sql fa0b07aa-d41a-4594-8e30-26938a32f6ad
insert into job_items (id, job_id, position, scene_id, character_id, prompt, status)
values ($1::uuid, $2::uuid, $3::int, $4::text, $5::text, $6::text, 'pending');
`

const QListItems = `--sql 0d7ba7f1-406c-43e7-b1d9-d682296b58cb
select id, job_id, position, scene_id, character_id, prompt, status,
       coalesce(artifact_ref, ''), coalesce(error_message, ''), attempts, updated_at
from job_items
where job_id = $1::uuid
order by position asc;
`

const QMarkItemSucceeded = `--sql 0daf2ea1-ce46-4a33-a08c-138a9a674924
update job_items
set status = 'succeeded', artifact_ref = $2::text, attempts = $3::int, updated_at = now()
where id = $1::uuid;
`

const QMarkItemFailed = `--sql 6df56399-d538-412e-8ae2-5928c5cf42ac
update job_items
set status = 'failed', error_message = $2::text, attempts = $3::int, updated_at = now()
where id = $1::uuid;
`
