package sqlinline

const QInsertJob = `--sql 312da560-82a8-4fcb-b780-295275d7dfeb
insert into jobs (id, project_id, user_id, kind, status, total_items, provider, model, voice, style, aspect_ratio, locale, requeued_from, free_generation)
values ($1::uuid, $2::uuid, $3::uuid, $4::text, $5::text, $6::int, $7::text, $8::text, $9::text, $10::text, $11::text, $12::text, nullif($13, '')::uuid, $14::boolean);
`

const QGetJob = `--sql c2226089-c33e-430d-866e-96bcadbcf19f
select id, project_id, user_id, kind, status, total_items, completed_items, failed_items,
       provider, model, voice, style, aspect_ratio, locale,
       coalesce(error_details, ''), coalesce(requeued_from::text, ''), free_generation,
       created_at, started_at, completed_at, updated_at
from jobs
where id = $1::uuid;
`

const QClaimJob = `--sql 853afef7-4869-4d1e-87dd-7a2846805f34
with next_job as (
    select id
    from jobs
    where status = 'pending'
    order by created_at asc
    for update skip locked
    limit 1
),
updated as (
    update jobs
    set status = 'processing', started_at = now(), updated_at = now()
    where id in (select id from next_job)
    returning id, project_id, user_id, kind, status, total_items, completed_items, failed_items,
              provider, model, voice, style, aspect_ratio, locale,
              coalesce(error_details, ''), coalesce(requeued_from::text, ''), free_generation,
              created_at, started_at, completed_at, updated_at
)
select * from updated;
`

const QUpdateJobCounters = `--sql 111e8204-f1e7-4097-b717-5aca87fcbd95
update jobs
set completed_items = $2::int, failed_items = $3::int, updated_at = now()
where id = $1::uuid and status = 'processing';
`

const QFinalizeJob = `--sql bd35890c-0282-47ee-ab80-1bcf39a8fc99
update jobs
set status = $2::text,
    completed_items = $3::int,
    failed_items = $4::int,
    error_details = nullif($5, ''),
    completed_at = now(),
    updated_at = now()
where id = $1::uuid and status in ('pending', 'processing')
returning id;
`

const QJobStatusForUpdate = `--sql 06126753-9e89-4998-a342-35e069bbf443
select status, kind from jobs where id = $1::uuid;
`
